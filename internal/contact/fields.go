package contact

import (
	"net/url"
	"time"
)

// DateLayout is the wire format of date valued fields.
const DateLayout = "2006-01-02"

var (
	Name         = plainField[string]("name", true)
	Avatar       = plainField[int]("avatar", true)
	Birthdate    = NewField("birthdate", true, parseDate, formatDate)
	Organization = plainField[string]("organization", true)
	Skype        = plainField[string]("skype", true)
	About        = plainField[string]("about", true)
	Zip          = plainField[string]("zip", true)
	City         = plainField[string]("city", true)
	State        = plainField[string]("state", true)
	Country      = plainField[string]("country", true)
	LinkedIn     = NewField("linkedin", true, url.Parse, formatURL)
	Twitter      = plainField[string]("twitter", true)

	Address  = plainField[string]("address", false)
	Location = plainField[string]("location", false)
	Phone    = plainField[string]("phone", false)
	Mail     = plainField[string]("mail", false)
	URL      = NewField("url", false, url.Parse, formatURL)
	Title    = plainField[string]("title", false)
	Skill    = plainField[string]("skill", false)
)

var catalogue = map[string]Field{}

func init() {
	for _, f := range []Field{
		Name, Avatar, Birthdate, Organization, Skype, About, Zip, City,
		State, Country, LinkedIn, Twitter,
		Address, Location, Phone, Mail, URL, Title, Skill,
	} {
		catalogue[f.Name()] = f
	}
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func formatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func formatURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
