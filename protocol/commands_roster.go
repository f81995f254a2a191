package protocol

import (
	"strconv"
	"strings"
)

// listFlagOrder fixes the order membership names appear in when a combined
// flag is unpacked.
var listFlagOrder = []struct {
	flag int
	name string
}{
	{1, "FL"},
	{2, "AL"},
	{4, "BL"},
	{8, "RL"},
	{16, "PL"},
}

// UserEntry is one user of the roster dump that follows a Synchronize
// reply. The combined list flag is unpacked into the list names it covers.
//
//	<- LST N=jig@example.com F=JigWig C=8b2d1a22-... 3 1
//	<- LST N=big@example.com F=big%40example.com C=7f4fe7f7-... 5 1 d673f5f8-...,22222222-...
type UserEntry struct {
	txn

	LoginName string
	Nickname  string
	GUID      string
	Lists     []string
	Groups    []string
}

func (c *UserEntry) Parse(header string, _ *LineReader) error {
	args, kv := splitTokens(header)

	if len(args) < 1 {
		return badHeader(header)
	}

	login, ok := kv["N"]
	if !ok {
		return badHeader(header)
	}

	c.LoginName = login
	c.Nickname = unescapeText(kv["F"])
	c.GUID = kv["C"]

	flags, err := strconv.Atoi(args[0])
	if err != nil {
		return badHeader(header)
	}

	for _, l := range listFlagOrder {
		if flags&l.flag == l.flag {
			c.Lists = append(c.Lists, l.name)
		}
	}

	if len(args) > 2 {
		c.Groups = strings.Split(args[2], ",")
	}

	return nil
}

// GroupEntry is one group of the roster dump.
//
//	<- LSG Friends 9bbc774a-dc40-413d-829c-07c2a3356e01
type GroupEntry struct {
	txn

	Name string
	GUID string
}

func (c *GroupEntry) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	c.Name = unescapeText(fields[1])
	c.GUID = fields[2]

	return nil
}

// AddContact adds a user to a list, or to a group when GroupGUID is set.
//
//	-> ADC 7 FL N=blimp@example.com F=blimp%40example.com
//	<- ADC 7 FL N=blimp@example.com F=blimp@example.com C=2a497286-...
//	-> ADC 8 FL C=2a497286-... 9f55493b-...
type AddContact struct {
	txn

	List      string
	LoginName string
	Nickname  string
	GUID      string
	GroupGUID string
}

func (c *AddContact) Parse(header string, _ *LineReader) error {
	args, kv := splitTokens(header)

	if len(args) < 2 {
		return badHeader(header)
	}

	if err := c.parseTrID(args[0]); err != nil {
		return err
	}

	c.List = args[1]
	c.LoginName = kv["N"]
	c.GUID = kv["C"]
	c.Nickname = unescapeText(kv["F"])

	if len(args) > 2 {
		c.GroupGUID = args[2]
	}

	return nil
}

func (c *AddContact) WriteTo(w *LineWriter) error {
	var b strings.Builder

	b.WriteString("ADC ")
	b.WriteString(strconv.Itoa(c.id))
	b.WriteString(" ")
	b.WriteString(c.List)

	if c.LoginName != "" {
		b.WriteString(" N=")
		b.WriteString(c.LoginName)
	}

	if c.GUID != "" {
		b.WriteString(" C=")
		b.WriteString(c.GUID)
	}

	if c.Nickname != "" {
		b.WriteString(" F=")
		b.WriteString(escapeText(c.Nickname))
	}

	if c.GroupGUID != "" {
		b.WriteString(" ")
		b.WriteString(c.GroupGUID)
	}

	return w.WriteLine("%s", b.String())
}

// RemoveContact removes a user from a list, or from a group when GroupGUID
// is set. Target is a GUID on the forward list and a login name elsewhere.
//
//	-> REM 13 FL 2a497286-0000-0000-0000-000000000000
//	-> REM 12 BL blimp@example.com
type RemoveContact struct {
	txn

	List      string
	Target    string
	GroupGUID string
}

func (c *RemoveContact) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 4 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.List = fields[2]
	c.Target = fields[3]

	if len(fields) > 4 {
		c.GroupGUID = fields[4]
	}

	return nil
}

func (c *RemoveContact) WriteTo(w *LineWriter) error {
	if c.GroupGUID != "" {
		return w.WriteLine("REM %d %s %s %s", c.id, c.List, c.Target, c.GroupGUID)
	}

	return w.WriteLine("REM %d %s %s", c.id, c.List, c.Target)
}

// AddGroup creates a group; the reply carries the GUID the server assigned.
//
//	-> ADG 7 Skaters
//	<- ADG 7 Skaters fe0117b8-bb49-430b-8550-83e2fdfd8f86
type AddGroup struct {
	txn

	Name string
	GUID string
}

func (c *AddGroup) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 4 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.Name = unescapeText(fields[2])
	c.GUID = fields[3]

	return nil
}

func (c *AddGroup) WriteTo(w *LineWriter) error {
	return w.WriteLine("ADG %d %s", c.id, escapeText(c.Name))
}

// RemoveGroup deletes a group.
//
//	-> RMG 8 056de1aa-9083-44a3-9d06-160121fe743a
type RemoveGroup struct {
	txn

	GUID string
}

func (c *RemoveGroup) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 3 {
		return badHeader(header)
	}

	if err := c.parseTrID(fields[1]); err != nil {
		return err
	}

	c.GUID = fields[2]

	return nil
}

func (c *RemoveGroup) WriteTo(w *LineWriter) error {
	return w.WriteLine("RMG %d %s", c.id, c.GUID)
}

// RenameGroup renames a group.
//
//	-> REG 10 9f55493b-b548-44ae-b125-44801ab4bc67 Skaters
type RenameGroup struct {
	txn

	GUID string
	Name string
}

func (c *RenameGroup) Parse(header string, _ *LineReader) error {
	fields := strings.Split(header, " ")

	if len(fields) < 2 {
		return badHeader(header)
	}

	return c.parseTrID(fields[1])
}

func (c *RenameGroup) WriteTo(w *LineWriter) error {
	return w.WriteLine("REG %d %s %s", c.id, c.GUID, escapeText(c.Name))
}
