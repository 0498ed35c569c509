package user

import "github.com/kalambet/podio/internal/contact"

// User is the account of a Podio user.
type User struct {
	UserID    int      `json:"user_id"`
	Mail      string   `json:"mail"`
	Status    string   `json:"status,omitempty"`
	Locale    string   `json:"locale,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Flags     []string `json:"flags,omitempty"`
	CreatedOn string   `json:"created_on,omitempty"`
	Mails     []Mail   `json:"mails,omitempty"`
}

// Mail is one of the addresses registered on an account.
type Mail struct {
	Mail     string `json:"mail"`
	Verified bool   `json:"verified"`
	Primary  bool   `json:"primary"`
	Disabled bool   `json:"disabled"`
}

// Status bundles the active user with their profile and notification counters.
type Status struct {
	User               User            `json:"user"`
	Profile            contact.Profile `json:"profile"`
	Properties         map[string]bool `json:"properties,omitempty"`
	InboxNew           int             `json:"inbox_new"`
	MessageUnreadCount int             `json:"message_unread_count"`
	CalendarCode       string          `json:"calendar_code,omitempty"`
	Mailbox            string          `json:"mailbox,omitempty"`
}

// Update changes account settings. Empty fields are left out. Changing the
// mail or the password requires OldPassword.
type Update struct {
	Locale      string `json:"locale,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Mail        string `json:"mail,omitempty"`
	OldPassword string `json:"old_password,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
}

// PropertyValue is the body of the property resource.
type PropertyValue struct {
	Value bool `json:"value"`
}

// fieldSingleValue and fieldMultiValue are the envelopes for updating one
// profile field.
type fieldSingleValue[R any] struct {
	Value R `json:"value"`
}

type fieldMultiValue[R any] struct {
	Value []R `json:"value"`
}
