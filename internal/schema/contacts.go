package schema

import "encoding/json"

// Contact is a name and phone number pair. Both fields are optional.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Contacts holds the emergency contacts of a session.
//
// Older documents stored the owner under "primary". UnmarshalJSON folds
// that field into Owner so the legacy shape never leaves this package.
// Encoding always writes "owner".
type Contacts struct {
	Owner     Contact `json:"owner"`
	Secondary Contact `json:"secondary"`
	Vet       Contact `json:"vet"`
}

type contactsWire struct {
	Owner     *Contact `json:"owner"`
	Primary   *Contact `json:"primary"`
	Secondary *Contact `json:"secondary"`
	Vet       *Contact `json:"vet"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Contacts) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Contacts{}
		return nil
	}
	var w contactsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Contacts{}
	switch {
	case w.Owner != nil:
		c.Owner = *w.Owner
	case w.Primary != nil:
		c.Owner = *w.Primary
	}
	if w.Secondary != nil {
		c.Secondary = *w.Secondary
	}
	if w.Vet != nil {
		c.Vet = *w.Vet
	}
	return nil
}

// All returns the contacts with a phone number, labelled, in display order.
func (c Contacts) All() []LabelledContact {
	var out []LabelledContact
	for _, lc := range []LabelledContact{
		{Label: "Owner", Contact: c.Owner},
		{Label: "Secondary", Contact: c.Secondary},
		{Label: "Vet", Contact: c.Vet},
	} {
		if lc.Phone != "" {
			out = append(out, lc)
		}
	}
	return out
}

// LabelledContact is a contact tagged with its role.
type LabelledContact struct {
	Label string
	Contact
}
