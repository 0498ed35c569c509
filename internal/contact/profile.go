package contact

// Profile is the full projection of a user's contact profile.
type Profile struct {
	ProfileID    int      `json:"profile_id"`
	UserID       int      `json:"user_id,omitempty"`
	Name         string   `json:"name"`
	Avatar       int      `json:"avatar,omitempty"`
	Birthdate    string   `json:"birthdate,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Skype        string   `json:"skype,omitempty"`
	About        string   `json:"about,omitempty"`
	Zip          string   `json:"zip,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	Country      string   `json:"country,omitempty"`
	LinkedIn     string   `json:"linkedin,omitempty"`
	Twitter      string   `json:"twitter,omitempty"`
	Address      []string `json:"address,omitempty"`
	Location     []string `json:"location,omitempty"`
	Phone        []string `json:"phone,omitempty"`
	Mail         []string `json:"mail,omitempty"`
	URL          []string `json:"url,omitempty"`
	Title        []string `json:"title,omitempty"`
	Skill        []string `json:"skill,omitempty"`
	LastSeenOn   string   `json:"last_seen_on,omitempty"`
}

// ProfileShort is the abbreviated projection used in listings.
type ProfileShort struct {
	ProfileID    int      `json:"profile_id"`
	UserID       int      `json:"user_id,omitempty"`
	Name         string   `json:"name"`
	Avatar       int      `json:"avatar,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Title        []string `json:"title,omitempty"`
	Mail         []string `json:"mail,omitempty"`
	Phone        []string `json:"phone,omitempty"`
	LastSeenOn   string   `json:"last_seen_on,omitempty"`
}

// UserMini is the smallest projection: enough to render a user reference.
type UserMini struct {
	UserID    int    `json:"user_id"`
	ProfileID int    `json:"profile_id,omitempty"`
	Name      string `json:"name"`
	Avatar    int    `json:"avatar,omitempty"`
}

// ProfileType selects a profile projection. Name is the discriminator the
// service expects; T is the type its response decodes into.
type ProfileType[T any] struct {
	name string
}

func (p ProfileType[T]) Name() string { return p.name }

var (
	Full  = ProfileType[Profile]{name: "full"}
	Short = ProfileType[ProfileShort]{name: "short"}
	Mini  = ProfileType[UserMini]{name: "mini"}
)

// ProfileUpdate replaces every field of a profile. Fields left at their
// zero value are sent as well and clear the stored value.
type ProfileUpdate struct {
	Name         string   `json:"name"`
	Avatar       int      `json:"avatar"`
	Birthdate    string   `json:"birthdate"`
	Organization string   `json:"organization"`
	Skype        string   `json:"skype"`
	About        string   `json:"about"`
	Zip          string   `json:"zip"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Country      string   `json:"country"`
	LinkedIn     string   `json:"linkedin"`
	Twitter      string   `json:"twitter"`
	Address      []string `json:"address"`
	Location     []string `json:"location"`
	Phone        []string `json:"phone"`
	Mail         []string `json:"mail"`
	URL          []string `json:"url"`
	Title        []string `json:"title"`
	Skill        []string `json:"skill"`
}

// UpdateFrom returns a ProfileUpdate carrying every editable field of p.
func UpdateFrom(p Profile) ProfileUpdate {
	return ProfileUpdate{
		Name:         p.Name,
		Avatar:       p.Avatar,
		Birthdate:    p.Birthdate,
		Organization: p.Organization,
		Skype:        p.Skype,
		About:        p.About,
		Zip:          p.Zip,
		City:         p.City,
		State:        p.State,
		Country:      p.Country,
		LinkedIn:     p.LinkedIn,
		Twitter:      p.Twitter,
		Address:      p.Address,
		Location:     p.Location,
		Phone:        p.Phone,
		Mail:         p.Mail,
		URL:          p.URL,
		Title:        p.Title,
		Skill:        p.Skill,
	}
}
