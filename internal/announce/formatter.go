package announce

import (
	"errors"
	"fmt"
	"strings"

	"guildkeeper/internal/common"
	"guildkeeper/internal/platform"
)

func Usage() []platform.Response {
	return []platform.Response{platform.Text("Usage: `dm @user Title | Content` or `dmrole <role> Title | Content`. To add an image, attach it to your message.")}
}

func Sent(name string) platform.Response {
	return platform.Text("Embed sent to %s via DM.", name)
}

func Failed(name string, err error) platform.Response {
	if errors.Is(err, common.ErrPermissionDenied) {
		return platform.Text("Unable to send DM to %s. They may have DMs disabled.", name)
	}
	return platform.Text("Could not send DM to %s. Please try again later.", name)
}

func RoleSummary(roleName string, sent int, unreachable []string) platform.Response {
	content := fmt.Sprintf("Embed sent to %d members of %s via DM.", sent, roleName)
	if len(unreachable) > 0 {
		content += fmt.Sprintf("\nUnable to reach %d members: %s", len(unreachable), strings.Join(unreachable, ", "))
	}
	return platform.Text("%s", content)
}
