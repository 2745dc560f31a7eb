package entity

// PlatformInfo is the static metadata of a platform adapter.
type PlatformInfo struct {
	ID              string // stored as feeds.platform_id
	Name            string
	APIHostname     string
	APIDomain       string // canonical domain used for URL matching
	APIURL          string
	Tags            string // default tags of feeds created from this platform
	CopyrightNotice string
	ItemNoun        string // "Chapter", "Episode", ...
	LogoURL         string
}
