package constant

const (
	DefaultListenPort = 8080
	DefaultPortRetry  = 10

	DefaultCertificateDirectory = "certs"
	DefaultCertificateCacheSize = 50
	DefaultCAName               = "railway-seb-ca"

	CAKeyFileName         = "ca-key.pem"
	CACertificateFileName = "ca-cert.pem"
	LeafKeySuffix         = "-key.pem"
	LeafCertificateSuffix = ".pem"

	EnvironmentPort = "PORT"
)

var DefaultAllowedDomains = []string{
	"exam.fpt.edu.vn",
}

type HeaderPair struct {
	Name  string
	Value string
}

var DefaultInjectedHeaders = []HeaderPair{
	{"x-safeexambrowser-configkeyhash", "0321cacbe2e73700407a53ffe4018f79145351086b26791e69cf7563c6657899"},
	{"x-safeexambrowser-requesthash", "c3faee4ad084dfd87a1a017e0c75544c5e4824ff1f3ca4cdce0667ee82a5091a"},
}

// stylesheets, images, fonts, audio/video, archives, documents
var DefaultStaticExtensions = []string{
	".css",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".bmp",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".mp3", ".mp4", ".wav", ".ogg", ".webm", ".avi", ".mov",
	".zip", ".rar", ".7z", ".gz", ".tar",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
}

const ConnectionEstablished = "HTTP/1.1 200 Connection Established\r\n\r\n"
