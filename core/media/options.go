package media

import "github.com/outdial/outdial-core/core/audio"

type DialOptions struct {
	TrunkID      string
	CallerID     string
	Headers      map[string]string
	EncodingInfo audio.EncodingInfo
}

type DialOption func(*DialOptions)

// WithTrunkID selects the outbound SIP trunk for the leg.
func WithTrunkID(trunkID string) DialOption {
	return func(o *DialOptions) {
		o.TrunkID = trunkID
	}
}

// WithCallerID sets the presented caller identity.
func WithCallerID(callerID string) DialOption {
	return func(o *DialOptions) {
		o.CallerID = callerID
	}
}

// WithHeaders attaches extra signaling headers to the INVITE.
func WithHeaders(headers map[string]string) DialOption {
	return func(o *DialOptions) {
		o.Headers = headers
	}
}

// WithEncodingInfo requests a specific audio encoding on the leg.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) DialOption {
	return func(o *DialOptions) {
		o.EncodingInfo = encodingInfo
	}
}
