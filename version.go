package firebolt

// Version is the library version reported in the User-Agent header.
const Version = "0.3.0"

// ProtocolVersion is the Firebolt wire protocol revision this client speaks.
const ProtocolVersion = "2.3"

// UserAgent returns the User-Agent sent with every request.
func UserAgent() string {
	return "GoSDK/" + Version
}
