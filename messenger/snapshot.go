package messenger

import (
	"github.com/tidwall/sjson"
)

// Snapshot renders the client's current state as JSON, for status surfaces
// and debugging. It reads live state and can interleave with handlers, so
// two calls during a busy moment may disagree.
func (c *Client) Snapshot() string {
	out := "{}"

	out, _ = sjson.Set(out, "loginName", c.loginName)
	out, _ = sjson.Set(out, "loggedIn", c.LoggedIn())

	if local := c.LocalUser(); local != nil {
		out, _ = sjson.Set(out, "localUser.nickname", local.Nickname())
		out, _ = sjson.Set(out, "localUser.status", local.Status().String())
	}

	for _, kind := range listKinds {
		list := c.lists[kind]
		names := []string{}

		for _, user := range list.Users() {
			names = append(names, user.LoginName())
		}

		out, _ = sjson.Set(out, "lists."+kind.Code(), names)
	}

	groups := []interface{}{}

	for _, group := range c.Groups() {
		names := []string{}

		for _, user := range group.Users() {
			names = append(names, user.LoginName())
		}

		groups = append(groups, map[string]interface{}{
			"guid":  group.GUID(),
			"name":  group.Name(),
			"users": names,
		})
	}

	out, _ = sjson.Set(out, "groups", groups)
	out, _ = sjson.Set(out, "conversations", len(c.conversations.snapshot()))

	return out
}
