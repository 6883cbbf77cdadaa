package version

import "fmt"

// Set at build time via -ldflags.
var (
	Version = "dev"
	Channel = "dev"
)

type Info struct {
	Version string `json:"version"`
	Channel string `json:"channel"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s)", i.Version, i.Channel)
}

func GetInfo() Info {
	return Info{
		Version: Version,
		Channel: Channel,
	}
}
