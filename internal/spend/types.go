package spend

// ProofWire is the wire encoding of a DLEQ proof: two base64url-encoded,
// big-endian scalars (c, r) mod n, per spec §3.
type ProofWire struct {
	C string `json:"c"`
	R string `json:"r"`
}

// Presentation is the parsed spend payload from spec §3. JSON decoding
// happens outside the core (spec §1's transport non-goal); this struct is
// the shape the transport layer hands in.
type Presentation struct {
	KID    string `json:"kid"`
	AADr   string `json:"aadr"`
	Origin string `json:"origin"`
	Epoch  int64  `json:"epoch"`

	P      string `json:"p"`
	M      string `json:"m"`
	Z      string `json:"z"`
	ZPrime string `json:"zPrime"`
	C      string `json:"c"`

	PiI ProofWire `json:"piI"`
	PiC ProofWire `json:"piC"`

	DClient         string `json:"dClient,omitempty"`
	HTTPMethod      string `json:"httpMethod,omitempty"`
	HTTPPath        string `json:"httpPath,omitempty"`
	HTTPBodyHashB64 string `json:"httpBodyHashB64,omitempty"`
	TLSExporterB64  string `json:"tlsExporterB64,omitempty"`
}

// Request bundles a Presentation with the live HTTP/TLS context and the
// caller's bearer token, the inputs spec §1 says the core is invoked with.
type Request struct {
	APIKey          string
	Presentation    Presentation
	LiveMethod      string
	LivePath        string
	LiveBody        []byte
	LiveTLSExporter []byte
}

// APIResponse is the spend outcome from spec §6.
type APIResponse struct {
	OK         bool   `json:"ok"`
	Remaining  int    `json:"remaining"`
	Idempotent bool   `json:"idempotent,omitempty"`
	WindowUsed string `json:"windowUsed,omitempty"`
	Error      string `json:"error,omitempty"`
}
