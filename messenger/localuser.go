package messenger

import (
	"context"
	"errors"
	"fmt"

	"github.com/luma/courier/protocol"
)

const (
	maxNicknameBytes  = 387
	maxPhoneBytes     = 95
	maxBroadcastChars = 999
)

// LocalUser is the logged-in identity. Every mutation round-trips through
// the server and is applied locally only once confirmed.
type LocalUser struct {
	User
}

// ChangeNickname sets the local display name.
func (u *LocalUser) ChangeNickname(ctx context.Context, nickname string) error {
	if nickname == "" {
		return errors.New("messenger: a nickname must be specified")
	}

	if len(nickname) > maxNicknameBytes {
		return fmt.Errorf("messenger: nickname longer than %d bytes", maxNicknameBytes)
	}

	if err := u.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer u.client.lock.RUnlock()

	if err := u.client.requireSession(); err != nil {
		return err
	}

	if nickname == u.Nickname() {
		return fmt.Errorf("messenger: nickname %q is already set", nickname)
	}

	cmd := &protocol.LocalProperty{Key: "MFN", Value: nickname}

	if _, err := u.client.send(ctx, cmd); err != nil {
		if code, ok := serverCode(err); ok && code == protocol.CodeNicknameChangeIllegal {
			return fmt.Errorf("messenger: nickname %q rejected by the server", nickname)
		}

		return translateRapidity(err)
	}

	previous := u.Nickname()
	u.setNickname(nickname)

	u.client.emit(UserNicknameChanged{User: &u.User, Nickname: nickname, PreviousNickname: previous})

	return nil
}

// ChangeStatus announces a new presence state. Offline is not announceable;
// log out instead.
func (u *LocalUser) ChangeStatus(ctx context.Context, status Status) error {
	code, ok := statusCode(status)
	if !ok {
		return fmt.Errorf("messenger: cannot change status to %s", status)
	}

	if err := u.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer u.client.lock.RUnlock()

	if err := u.client.requireSession(); err != nil {
		return err
	}

	if status == u.Status() {
		return fmt.Errorf("messenger: status %s is already set", status)
	}

	if _, err := u.client.send(ctx, u.announce(code, u.Capabilities(), u.DisplayPicture())); err != nil {
		return translateRapidity(err)
	}

	previous := u.Status()
	u.setStatus(status)

	u.client.emit(UserStatusChanged{User: &u.User, Status: status, PreviousStatus: previous})

	return nil
}

// ChangeCapabilities announces a new feature bitmask.
func (u *LocalUser) ChangeCapabilities(ctx context.Context, capabilities Capabilities) error {
	if err := u.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer u.client.lock.RUnlock()

	if err := u.client.requireSession(); err != nil {
		return err
	}

	if capabilities == u.Capabilities() {
		return errors.New("messenger: those capabilities are already set")
	}

	code, _ := statusCode(u.Status())

	if _, err := u.client.send(ctx, u.announce(code, capabilities, u.DisplayPicture())); err != nil {
		return translateRapidity(err)
	}

	u.setCapabilities(capabilities)

	u.client.emit(UserCapabilitiesChanged{User: &u.User, Capabilities: capabilities})

	return nil
}

// ChangeDisplayPicture announces a new display picture reference, "" to
// clear it.
func (u *LocalUser) ChangeDisplayPicture(ctx context.Context, picture string) error {
	if err := u.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer u.client.lock.RUnlock()

	if err := u.client.requireSession(); err != nil {
		return err
	}

	if picture == u.DisplayPicture() {
		return errors.New("messenger: that display picture is already set")
	}

	code, _ := statusCode(u.Status())

	if _, err := u.client.send(ctx, u.announce(code, u.Capabilities(), picture)); err != nil {
		return translateRapidity(err)
	}

	u.setDisplayPicture(picture)

	u.client.emit(UserDisplayPictureChanged{User: &u.User, DisplayPicture: picture})

	return nil
}

// Broadcast publishes an extended presence payload to everyone watching.
func (u *LocalUser) Broadcast(ctx context.Context, message string) error {
	if message == "" {
		return errors.New("messenger: a message must be specified")
	}

	if len([]rune(message)) >= maxBroadcastChars {
		return errors.New("messenger: broadcast message too long")
	}

	if err := u.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer u.client.lock.RUnlock()

	if err := u.client.requireSession(); err != nil {
		return err
	}

	_, err := u.client.send(ctx, &protocol.SendBroadcast{Message: message})

	return err
}

// SetProperty stores a per-account attribute on the server. The phone
// properties take free text up to a length limit; the device toggles take
// fixed values; the blog flag is server-owned and cannot be set at all.
func (u *LocalUser) SetProperty(ctx context.Context, property Property, value string) error {
	if err := checkProperty(u, property, value); err != nil {
		return err
	}

	if err := u.client.lock.RLock(ctx); err != nil {
		return err
	}
	defer u.client.lock.RUnlock()

	if err := u.client.requireSession(); err != nil {
		return err
	}

	if value == u.Property(property) {
		return errors.New("messenger: property value already set")
	}

	cmd := &protocol.LocalProperty{Key: string(property), Value: value}

	if _, err := u.client.send(ctx, cmd); err != nil {
		return err
	}

	u.setProperty(property, value)

	u.client.emit(UserPropertyChanged{User: &u.User, Property: property, Value: value})

	return nil
}

func checkProperty(u *LocalUser, property Property, value string) error {
	switch property {
	case PropertyHomePhone, PropertyWorkPhone, PropertyMobilePhone:
		if len(value) > maxPhoneBytes {
			return fmt.Errorf("messenger: property value longer than %d bytes", maxPhoneBytes)
		}

	case PropertyHasBlog:
		return errors.New("messenger: the blog property cannot be set by the user")

	case PropertyMobileDevice:
		if value != MobileDeviceEnabled && value != MobileDeviceDisabled {
			return fmt.Errorf("messenger: invalid mobile device value %q", value)
		}

	case PropertyAuthorizedMobile:
		if value != AuthorizedMobileEnabled && value != AuthorizedMobileDisabled {
			return fmt.Errorf("messenger: invalid authorized mobile value %q", value)
		}

		if value == AuthorizedMobileEnabled &&
			u.Property(PropertyMobileDevice) != MobileDeviceEnabled {
			return errors.New("messenger: mobile device must be enabled first")
		}

	case PropertyDirectDevice:
		if value != DirectDeviceEnabled && value != DirectDeviceDisabled {
			return fmt.Errorf("messenger: invalid direct device value %q", value)
		}

	default:
		return fmt.Errorf("messenger: unknown property %q", string(property))
	}

	return nil
}

// announce builds the status announcement. An empty picture is sent as "0".
func (u *LocalUser) announce(statusCode string, capabilities Capabilities, picture string) *protocol.ChangeStatus {
	if picture == "" {
		picture = "0"
	}

	return &protocol.ChangeStatus{
		Status:         statusCode,
		Capabilities:   uint32(capabilities),
		DisplayPicture: picture,
	}
}
