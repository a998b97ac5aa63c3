package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GroupSuffix ends every WhatsApp group chat id
const GroupSuffix = "@g.us"

// Contact is an entry of getContacts
type Contact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// IsGroup reports whether the contact is a group chat
func (c Contact) IsGroup() bool {
	return IsGroupID(c.ID)
}

// IsGroupID reports whether id is a group chat id
func IsGroupID(id string) bool {
	return strings.HasSuffix(id, GroupSuffix)
}

// Participant is a member of a group
type Participant struct {
	ID           string `json:"id"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// GroupData describes a group
type GroupData struct {
	GroupID      string        `json:"groupId"`
	Owner        string        `json:"owner"`
	Subject      string        `json:"subject"`
	Participants []Participant `json:"participants"`
}

// GetContacts lists the instance's contacts and chats
func (c *Client) GetContacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	if err := c.call(ctx, http.MethodGet, "getContacts", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// Groups lists the group chats among the contacts
func (c *Client) Groups(ctx context.Context) ([]Contact, error) {
	contacts, err := c.GetContacts(ctx)
	if err != nil {
		return nil, err
	}

	var groups []Contact
	for _, ct := range contacts {
		if !ct.IsGroup() {
			continue
		}
		if ct.Name == "" {
			ct.Name = "Unknown Group"
		}
		ct.Type = "group"
		groups = append(groups, ct)
	}
	c.log.Debug().Int("count", len(groups)).Msg("Found groups")
	return groups, nil
}

// GetGroupData fetches group metadata. groupID must be a group chat id.
func (c *Client) GetGroupData(ctx context.Context, groupID string) (*GroupData, error) {
	if !IsGroupID(groupID) {
		return nil, fmt.Errorf("invalid group id %q: must end with %s", groupID, GroupSuffix)
	}

	var data GroupData
	if err := c.call(ctx, http.MethodPost, "getGroupData", map[string]string{"groupId": groupID}, &data); err != nil {
		return nil, err
	}
	if data.GroupID == "" {
		data.GroupID = groupID
	}
	return &data, nil
}
