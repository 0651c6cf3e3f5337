package utils

const DefaultChunkSize = 1024 * 1024 // 1MB read chunk

// Hosts that serve (or front) the storage CDN. Used to rank candidate links
// scraped from loose text and as Referer fallbacks for the origin.
var StorageHosts = []string{
	"terabox.com",
	"1024tera.com",
	"teraboxcdn.com",
	"freeterabox.com",
	"nephobox.com",
	"4funbox.com",
	"mirrobox.com",
	"momerybox.com",
	"tibibox.com",
	"terasharelink.com",
	"teraboxapp.com",
	"terabox.app",
}

var RefererCandidates = []string{
	"https://www.terabox.com/",
	"https://www.1024tera.com/",
	"https://www.terabox.app/",
	"https://www.freeterabox.com/",
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
	".m4v":  true,
	".flv":  true,
	".ts":   true,
	".3gp":  true,
	".wmv":  true,
	".mpeg": true,
	".mpg":  true,
}

// Browser-only list; the storage origin rejects tool user agents
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 Edg/132.0.0.0",
}
