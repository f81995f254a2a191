package messenger

import (
	"go.uber.org/zap"

	"github.com/luma/courier/protocol"
)

// syncResult is the buffered outcome of one roster sync: every state change
// already applied, with its events held back until the session is announced.
type syncResult struct {
	messages             []ServiceMessage
	groupsAdded          []GroupAdded
	groupsRemoved        []GroupRemoved
	usersAddedToList     []UserAddedToList
	usersRemovedFromList []UserRemovedFromList
	usersAddedToGroup    []UserAddedToGroup
	usersRemovedFromGrp  []UserRemovedFromGroup
	groupNamesChanged    []GroupNameChanged
	nicknamesChanged     []UserNicknameChanged
	propertiesChanged    []UserPropertyChanged
	privacyChanged       []PrivacyChanged
}

// processSyncCommands applies a roster dump as a diff against the state a
// previous session left behind. The dump is authoritative: anything it does
// not mention is gone, so after the entry pass, unreferenced groups are
// dropped and unreferenced users leave every list and group they were on,
// each departure with its own removal event.
func (c *Client) processSyncCommands(commands []protocol.Command) *syncResult {
	result := &syncResult{}

	referencedUsers := map[*User]struct{}{}
	referencedGroups := map[*Group]struct{}{}

	// Per-user properties apply to the most recently announced entry.
	var lastUser *User

	for _, cmd := range commands {
		switch cmd := cmd.(type) {
		case *protocol.UserEntry:
			lastUser = c.syncUserEntry(cmd, result)
			referencedUsers[lastUser] = struct{}{}

		case *protocol.GroupEntry:
			referencedGroups[c.syncGroupEntry(cmd, result)] = struct{}{}

		case *protocol.UserProperty:
			if lastUser == nil {
				continue
			}

			property := Property(cmd.Key)

			if lastUser.Property(property) != cmd.Value {
				lastUser.setProperty(property, cmd.Value)

				result.propertiesChanged = append(result.propertiesChanged, UserPropertyChanged{
					User:        lastUser,
					Property:    property,
					Value:       cmd.Value,
					DuringLogin: true,
				})
			}

		case *protocol.LocalProperty:
			c.syncLocalProperty(cmd, result)

		case *protocol.PrivacySetting:
			setting := PrivacySetting(cmd.Key)

			if c.PrivacySetting(setting) != cmd.Value {
				c.setPrivacy(setting, cmd.Value)

				result.privacyChanged = append(result.privacyChanged, PrivacyChanged{
					Setting:     setting,
					Value:       cmd.Value,
					DuringLogin: true,
				})
			}

		case *protocol.Message:
			message, err := ParseMessage(cmd.Payload)
			if err != nil {
				c.log.Debug("Dropping malformed sync message", zap.Error(err))
				continue
			}

			result.messages = append(result.messages, ServiceMessage{
				SenderLoginName: cmd.Sender,
				SenderNickname:  cmd.SenderNickname,
				Message:         message,
				DuringLogin:     true,
			})
		}
	}

	for _, group := range c.Groups() {
		if _, ok := referencedGroups[group]; ok {
			continue
		}

		c.removeGroup(group)

		result.groupsRemoved = append(result.groupsRemoved, GroupRemoved{
			Group:       group,
			DuringLogin: true,
		})
	}

	for _, kind := range listKinds {
		list := c.lists[kind]

		for _, user := range list.Users() {
			if _, ok := referencedUsers[user]; ok {
				continue
			}

			list.members.remove(user)

			result.usersRemovedFromList = append(result.usersRemovedFromList, UserRemovedFromList{
				User:        user,
				List:        list,
				DuringLogin: true,
			})
		}
	}

	for _, group := range c.Groups() {
		for _, user := range group.Users() {
			if _, ok := referencedUsers[user]; ok {
				continue
			}

			group.members.remove(user)

			result.usersRemovedFromGrp = append(result.usersRemovedFromGrp, UserRemovedFromGroup{
				User:        user,
				Group:       group,
				DuringLogin: true,
			})
		}
	}

	return result
}

func (c *Client) syncUserEntry(cmd *protocol.UserEntry, result *syncResult) *User {
	user, created := c.lookupUser(cmd.LoginName)

	user.setGUID(cmd.GUID)

	if created {
		user.setNickname(cmd.Nickname)
	} else if user.Nickname() != cmd.Nickname {
		previous := user.Nickname()
		user.setNickname(cmd.Nickname)

		result.nicknamesChanged = append(result.nicknamesChanged, UserNicknameChanged{
			User:             user,
			Nickname:         cmd.Nickname,
			PreviousNickname: previous,
			DuringLogin:      true,
		})
	}

	entryLists := map[string]struct{}{}

	for _, code := range cmd.Lists {
		entryLists[code] = struct{}{}
	}

	for _, kind := range listKinds {
		list := c.lists[kind]
		_, member := entryLists[kind.Code()]

		switch {
		case member && !list.Contains(user):
			list.members.add(user)

			result.usersAddedToList = append(result.usersAddedToList, UserAddedToList{
				User:        user,
				List:        list,
				DuringLogin: true,
			})

		case !member && list.Contains(user):
			list.members.remove(user)

			result.usersRemovedFromList = append(result.usersRemovedFromList, UserRemovedFromList{
				User:        user,
				List:        list,
				DuringLogin: true,
			})
		}
	}

	entryGroups := map[string]struct{}{}

	for _, guid := range cmd.Groups {
		entryGroups[guid] = struct{}{}
	}

	for _, group := range c.Groups() {
		_, member := entryGroups[group.GUID()]

		switch {
		case member && !group.Contains(user):
			group.members.add(user)

			result.usersAddedToGroup = append(result.usersAddedToGroup, UserAddedToGroup{
				User:        user,
				Group:       group,
				DuringLogin: true,
			})

		case !member && group.Contains(user):
			group.members.remove(user)

			result.usersRemovedFromGrp = append(result.usersRemovedFromGrp, UserRemovedFromGroup{
				User:        user,
				Group:       group,
				DuringLogin: true,
			})
		}
	}

	return user
}

func (c *Client) syncGroupEntry(cmd *protocol.GroupEntry, result *syncResult) *Group {
	if group := c.groupByGUID(cmd.GUID); group != nil {
		if group.Name() != cmd.Name {
			previous := group.Name()
			group.setName(cmd.Name)

			result.groupNamesChanged = append(result.groupNamesChanged, GroupNameChanged{
				Group:        group,
				Name:         cmd.Name,
				PreviousName: previous,
				DuringLogin:  true,
			})
		}

		return group
	}

	group := newGroup(c, cmd.GUID, cmd.Name)
	c.addGroup(group)

	result.groupsAdded = append(result.groupsAdded, GroupAdded{
		Group:       group,
		DuringLogin: true,
	})

	return group
}

func (c *Client) syncLocalProperty(cmd *protocol.LocalProperty, result *syncResult) {
	local := c.LocalUser()
	if local == nil {
		return
	}

	if cmd.Key == "MFN" {
		if local.Nickname() != cmd.Value {
			previous := local.Nickname()
			local.setNickname(cmd.Value)

			result.nicknamesChanged = append(result.nicknamesChanged, UserNicknameChanged{
				User:             &local.User,
				Nickname:         cmd.Value,
				PreviousNickname: previous,
				DuringLogin:      true,
			})
		}

		return
	}

	property := Property(cmd.Key)

	if local.Property(property) != cmd.Value {
		local.setProperty(property, cmd.Value)

		result.propertiesChanged = append(result.propertiesChanged, UserPropertyChanged{
			User:        &local.User,
			Property:    property,
			Value:       cmd.Value,
			DuringLogin: true,
		})
	}
}

// releaseSyncEvents delivers the buffered events in their fixed order.
func (c *Client) releaseSyncEvents(result *syncResult) {
	for _, e := range result.messages {
		c.emit(e)
	}

	for _, e := range result.groupsAdded {
		c.emit(e)
	}

	for _, e := range result.groupsRemoved {
		c.emit(e)
	}

	for _, e := range result.usersAddedToList {
		c.emit(e)
	}

	for _, e := range result.usersRemovedFromList {
		c.emit(e)
	}

	for _, e := range result.usersAddedToGroup {
		c.emit(e)
	}

	for _, e := range result.usersRemovedFromGrp {
		c.emit(e)
	}

	for _, e := range result.groupNamesChanged {
		c.emit(e)
	}

	for _, e := range result.nicknamesChanged {
		c.emit(e)
	}

	for _, e := range result.propertiesChanged {
		c.emit(e)
	}

	for _, e := range result.privacyChanged {
		c.emit(e)
	}
}
