package ajp

// Packet framing.
const (
	// Web server to container packets start with 0x12 0x34.
	magicIn0 = 0x12
	magicIn1 = 0x34

	// Container to web server packets start with 'A' 'B'.
	magicOut0 = 'A'
	magicOut1 = 'B'

	headerLength = 4

	// DefaultPacketSize is the AJP default maximum packet size, header included.
	DefaultPacketSize = 8192
	// MaxPacketSize is the largest packet size the protocol can express.
	MaxPacketSize = 65536

	// nullString is the length marker of a null string.
	nullString = 0xFFFF
)

// Message prefix codes.
const (
	prefixForwardRequest = 2
	prefixSendBodyChunk  = 3
	prefixSendHeaders    = 4
	prefixEndResponse    = 5
	prefixGetBodyChunk   = 6
	prefixShutdown       = 7
	prefixPing           = 8
	prefixCPongReply     = 9
	prefixCPing          = 10
)

// Request attribute codes.
const (
	attrContext      = 0x01
	attrServletPath  = 0x02
	attrRemoteUser   = 0x03
	attrAuthType     = 0x04
	attrQueryString  = 0x05
	attrJVMRoute     = 0x06
	attrSSLCert      = 0x07
	attrSSLCipher    = 0x08
	attrSSLSession   = 0x09
	attrReqAttribute = 0x0A
	attrSSLKeySize   = 0x0B
	attrSecret       = 0x0C
	attrStoredMethod = 0x0D
	attrTerminator   = 0xFF
)

// methodStored means the method name travels in the stored_method attribute.
const methodStored = 0xFF

// methods is indexed by method code - 1.
var methods = [...]string{
	"OPTIONS", "GET", "HEAD", "POST", "PUT", "DELETE", "TRACE",
	"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE", "LOCK", "UNLOCK",
	"ACL", "REPORT", "VERSION-CONTROL", "CHECKIN", "CHECKOUT", "UNCHECKOUT",
	"SEARCH", "MKWORKSPACE", "UPDATE", "LABEL", "MERGE", "BASELINE-CONTROL",
	"MKACTIVITY",
}

// methodCode returns the wire code for an HTTP method, or 0 if it has none.
func methodCode(name string) byte {
	for i, m := range methods {
		if m == name {
			return byte(i + 1)
		}
	}
	return 0
}

// requestHeaders is indexed by (code & 0xFF) - 1 for codes 0xA001-0xA00E.
var requestHeaders = [...]string{
	"Accept", "Accept-Charset", "Accept-Encoding", "Accept-Language",
	"Authorization", "Connection", "Content-Type", "Content-Length",
	"Cookie", "Cookie2", "Host", "Pragma", "Referer", "User-Agent",
}

// responseHeaders maps canonical header names to codes 0xA001-0xA00B.
var responseHeaders = map[string]uint16{
	"Content-Type":     0xA001,
	"Content-Language": 0xA002,
	"Content-Length":   0xA003,
	"Date":             0xA004,
	"Last-Modified":    0xA005,
	"Location":         0xA006,
	"Set-Cookie":       0xA007,
	"Set-Cookie2":      0xA008,
	"Servlet-Engine":   0xA009,
	"Status":           0xA00A,
	"Www-Authenticate": 0xA00B,
}

// requestHeaderCode returns the wire code for a request header, or 0.
func requestHeaderCode(name string) uint16 {
	for i, h := range requestHeaders {
		if h == name {
			return 0xA001 + uint16(i)
		}
	}
	return 0
}
