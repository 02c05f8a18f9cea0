// Package platformtest provides an in-memory Platform for tests.
package platformtest

import (
	"fmt"
	"strconv"
	"sync"

	"guildkeeper/internal/common"
	"guildkeeper/internal/platform"

	"github.com/bwmarrin/discordgo"
)

var _ platform.Platform = (*Fake)(nil)

type RoleChange struct {
	GuildID string
	UserID  string
	RoleID  string
	Added   bool
}

type SentMessage struct {
	ChannelID string
	Message   *discordgo.MessageSend
}

type Edit struct {
	ChannelID string
	MessageID string
	Embeds    []*discordgo.MessageEmbed
}

// Fake keeps guild members, roles and channels in memory and records every
// mutation. Set the *Err fields (or FailDirect per user) to make calls fail
type Fake struct {
	mu       sync.Mutex
	members  map[string]map[string]*discordgo.Member
	roles    map[string]map[string]*discordgo.Role
	channels map[string]*discordgo.Channel
	admins   map[string]bool
	nextID   int

	RoleChanges []RoleChange
	Sent        []SentMessage
	Direct      []SentMessage
	Edits       []Edit

	AddRoleErr    error
	RemoveRoleErr error
	SendErr       error
	FailDirect    map[string]error
}

func New() *Fake {
	return &Fake{
		members:    map[string]map[string]*discordgo.Member{},
		roles:      map[string]map[string]*discordgo.Role{},
		channels:   map[string]*discordgo.Channel{},
		admins:     map[string]bool{},
		FailDirect: map[string]error{},
	}
}

func (f *Fake) AddMember(guildID string, userID string, roles ...string) *discordgo.Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[guildID] == nil {
		f.members[guildID] = map[string]*discordgo.Member{}
	}
	member := &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID, Username: "user" + userID}, Roles: roles}
	f.members[guildID][userID] = member
	return member
}

func (f *Fake) RemoveMember(guildID string, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[guildID], userID)
}

func (f *Fake) AddRoleDefinition(guildID string, roleID string, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[guildID] == nil {
		f.roles[guildID] = map[string]*discordgo.Role{}
	}
	f.roles[guildID][roleID] = &discordgo.Role{ID: roleID, Name: name}
}

func (f *Fake) AddChannel(guildID string, channelID string, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channelID] = &discordgo.Channel{ID: channelID, GuildID: guildID, Name: name}
}

func (f *Fake) SetAdmin(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[userID] = true
}

func (f *Fake) AddRole(guildID string, userID string, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddRoleErr != nil {
		return f.AddRoleErr
	}
	member, ok := f.members[guildID][userID]
	if !ok {
		return common.ErrUnknownMember
	}
	member.Roles = append(member.Roles, roleID)
	f.RoleChanges = append(f.RoleChanges, RoleChange{guildID, userID, roleID, true})
	return nil
}

func (f *Fake) RemoveRole(guildID string, userID string, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveRoleErr != nil {
		return f.RemoveRoleErr
	}
	member, ok := f.members[guildID][userID]
	if !ok {
		return common.ErrUnknownMember
	}
	kept := []string{}
	for _, id := range member.Roles {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	member.Roles = kept
	f.RoleChanges = append(f.RoleChanges, RoleChange{guildID, userID, roleID, false})
	return nil
}

func (f *Fake) Member(guildID string, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[guildID][userID]
	if !ok {
		return nil, common.ErrUnknownMember
	}
	return member, nil
}

func (f *Fake) Role(guildID string, roleID string) (*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[guildID][roleID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, common.ErrNotFound)
	}
	return role, nil
}

func (f *Fake) Channel(channelID string) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	channel, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, common.ErrNotFound)
	}
	return channel, nil
}

func (f *Fake) MembersWithRole(guildID string, roleID string) ([]*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*discordgo.Member{}
	for _, member := range f.members[guildID] {
		for _, id := range member.Roles {
			if id == roleID {
				result = append(result, member)
				break
			}
		}
	}
	return result, nil
}

func (f *Fake) Send(channelID string, message *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.nextID++
	f.Sent = append(f.Sent, SentMessage{channelID, message})
	return &discordgo.Message{ID: "m" + strconv.Itoa(f.nextID), ChannelID: channelID, Content: message.Content}, nil
}

func (f *Fake) EditEmbeds(channelID string, messageID string, embeds []*discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, Edit{channelID, messageID, embeds})
	return nil
}

func (f *Fake) SendDirect(userID string, message *discordgo.MessageSend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailDirect[userID]; err != nil {
		return err
	}
	f.Direct = append(f.Direct, SentMessage{userID, message})
	return nil
}

func (f *Fake) IsAdmin(guildID string, userID string, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[userID], nil
}

// Contents of the messages sent to a channel
func (f *Fake) SentTo(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents := []string{}
	for _, sent := range f.Sent {
		if sent.ChannelID == channelID {
			contents = append(contents, sent.Message.Content)
		}
	}
	return contents
}
