package messenger

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/courier/protocol"
)

var _ = Describe("roster sync diff", func() {
	var client *Client

	entry := func(login, guid string, lists []string, groups ...string) *protocol.UserEntry {
		return &protocol.UserEntry{
			LoginName: login,
			Nickname:  login,
			GUID:      guid,
			Lists:     lists,
			Groups:    groups,
		}
	}

	BeforeEach(func() {
		client = NewClient(Options{LoginName: "bob@example.com"})

		// Seed the state a previous session would have left behind: two
		// groups, alice in one and carol in both.
		client.processSyncCommands([]protocol.Command{
			&protocol.GroupEntry{Name: "Friends", GUID: "g1"},
			&protocol.GroupEntry{Name: "Work", GUID: "g2"},
			entry("alice@example.com", "a-guid", []string{"FL", "AL"}, "g1"),
			entry("carol@example.com", "c-guid", []string{"FL", "BL"}, "g1", "g2"),
		})
	})

	It("applies a fresh dump as additions", func() {
		Expect(client.Groups()).To(HaveLen(2))
		Expect(client.List(ForwardList).Users()).To(HaveLen(2))
		Expect(client.List(AllowList).Users()).To(HaveLen(1))
		Expect(client.List(BlockList).Users()).To(HaveLen(1))
	})

	It("treats the next dump as authoritative and removes what it omits", func() {
		alice := client.User("alice@example.com")
		carol := client.User("carol@example.com")
		friends := client.groupByGUID("g1")
		work := client.groupByGUID("g2")

		dump := []protocol.Command{
			&protocol.GroupEntry{Name: "Pals", GUID: "g1"},
			&protocol.UserEntry{
				LoginName: "alice@example.com",
				Nickname:  "Alicia",
				GUID:      "a-guid",
				Lists:     []string{"FL", "AL"},
				Groups:    []string{"g1"},
			},
		}

		result := client.processSyncCommands(dump)

		Expect(result.groupNamesChanged).To(ConsistOf(GroupNameChanged{
			Group:        friends,
			Name:         "Pals",
			PreviousName: "Friends",
			DuringLogin:  true,
		}))

		Expect(result.nicknamesChanged).To(ConsistOf(UserNicknameChanged{
			User:             alice,
			Nickname:         "Alicia",
			PreviousNickname: "alice@example.com",
			DuringLogin:      true,
		}))

		Expect(result.groupsRemoved).To(ConsistOf(GroupRemoved{
			Group:       work,
			DuringLogin: true,
		}))

		// Carol leaves her lists in the fixed list order, block before
		// forward.
		Expect(result.usersRemovedFromList).To(Equal([]UserRemovedFromList{
			{User: carol, List: client.List(BlockList), DuringLogin: true},
			{User: carol, List: client.List(ForwardList), DuringLogin: true},
		}))

		// The dropped group is already gone by the membership pass, so
		// carol's departure is only reported for the surviving one.
		Expect(result.usersRemovedFromGrp).To(ConsistOf(UserRemovedFromGroup{
			User:        carol,
			Group:       friends,
			DuringLogin: true,
		}))

		Expect(result.usersAddedToList).To(BeEmpty())
		Expect(result.usersAddedToGroup).To(BeEmpty())

		Expect(friends.Users()).To(ConsistOf(alice))
		Expect(client.Groups()).To(ConsistOf(friends))
		Expect(client.List(BlockList).Users()).To(BeEmpty())
	})

	It("moves a user between lists and groups in place", func() {
		carol := client.User("carol@example.com")
		friends := client.groupByGUID("g1")
		work := client.groupByGUID("g2")

		result := client.processSyncCommands([]protocol.Command{
			&protocol.GroupEntry{Name: "Friends", GUID: "g1"},
			&protocol.GroupEntry{Name: "Work", GUID: "g2"},
			entry("alice@example.com", "a-guid", []string{"FL", "AL"}, "g1"),
			entry("carol@example.com", "c-guid", []string{"FL", "AL"}, "g2"),
		})

		Expect(result.usersAddedToList).To(ConsistOf(UserAddedToList{
			User:        carol,
			List:        client.List(AllowList),
			DuringLogin: true,
		}))
		Expect(result.usersRemovedFromList).To(ConsistOf(UserRemovedFromList{
			User:        carol,
			List:        client.List(BlockList),
			DuringLogin: true,
		}))
		Expect(result.usersRemovedFromGrp).To(ConsistOf(UserRemovedFromGroup{
			User:        carol,
			Group:       friends,
			DuringLogin: true,
		}))

		Expect(friends.Users()).ToNot(ContainElement(carol))
		Expect(work.Users()).To(ContainElement(carol))
	})
})
