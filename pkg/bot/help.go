package bot

import (
	"strings"

	"github.com/dotsetgreg/masquerade/pkg/permissions"
)

const helpTemplate = "## Create\n" +
	"`@%BOT% create {name} {display_name}`\n" +
	"## Use\n" +
	"`name;Text you want to send.`\n" +
	"## Edit\n" +
	"`@%BOT% display {name} {display_name}`\n" +
	"`@%BOT% avatar {name} {url}`\n" +
	"`@%BOT% colour {name} {colour}`\n" +
	"`@%BOT% name {name} {new_name}`\n" +
	"To remove a field\n" +
	"`@%BOT% display {name} clear`\n" +
	"## Delete\n" +
	"`@%BOT% delete {name}`\n" +
	"## List\n" +
	"`@%BOT% list`\n" +
	"## Import\n" +
	"`@%BOT% import` with the file from `pk;export` attached\n" +
	"## Info\n" +
	"`@%BOT% author` reply to a message to get original author\n" +
	"## Default\n" +
	"Messages sent without a prefix will use your default profile if set.\n" +
	"`@%BOT% default {name}` set a global default profile\n" +
	"`@%BOT% server_default {name}` set a server default profile\n" +
	"`@%BOT% channel_default {name}` set a channel default profile\n" +
	"To remove defaults use the same command but without a name\n" +
	"`@%BOT% default` remove global default profile\n" +
	"## Permissions\n" +
	"-Required\n" +
	"`%SPEAK_BOT%` for me, `%SPEAK_USER%` for you.\n" +
	"-Optional\n" +
	"`%MANAGE_MESSAGES%` to delete the original message.\n" +
	"`%MANAGE_COLOUR%` to set masquerade colour."

func (b *Bot) helpText() string {
	name := func(side permissions.Side, c permissions.Capability) string {
		return b.transport.CapabilityName(side, c)
	}
	text := strings.NewReplacer(
		"%BOT%", b.transport.BotName(),
		"%SPEAK_BOT%", name(permissions.Bot, permissions.SpeakAsCustom),
		"%SPEAK_USER%", name(permissions.User, permissions.SpeakAsCustom),
		"%MANAGE_MESSAGES%", name(permissions.Bot, permissions.ManageMessages),
		"%MANAGE_COLOUR%", name(permissions.Bot, permissions.ManageColour),
	).Replace(helpTemplate)
	if b.cfg.SupportURL != "" {
		text += "\n\n[Support Server](" + b.cfg.SupportURL + ")"
	}
	return text
}
