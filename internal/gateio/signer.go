package gateio

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quantarc/gateio-gateway/errs"
)

const (
	loginChannelSpot    = "spot.login"
	loginChannelFutures = "futures.login"
)

type loginPayload struct {
	APIKey    string `json:"api_key"`
	ReqID     string `json:"req_id"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

type loginFrame struct {
	Time    int64        `json:"time"`
	Channel string       `json:"channel"`
	Event   string       `json:"event"`
	Payload loginPayload `json:"payload"`
}

// Signer builds and signs exchange login frames. Spot and futures channels
// authenticate independently. The clock is injected so signature inputs are
// reproducible in tests.
type Signer struct {
	account string
	key     string
	secret  string
	now     func() time.Time
}

// NewSigner returns a signer for the given account credentials.
func NewSigner(account, key, secret string, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{account: account, key: key, secret: secret, now: now}
}

// Sign computes the lowercase-hex HMAC-SHA512 of the canonical login string
// "api\n<channel>\n\n<timestamp>" keyed by the account secret.
func (s *Signer) Sign(channel string, unixSeconds int64) string {
	canonical := "api\n" + channel + "\n\n" + strconv.FormatInt(unixSeconds, 10)
	mac := hmac.New(sha512.New, []byte(s.secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// LoginFrame produces the signed login frame for the named login channel
// (spot.login or futures.login) stamped at the signer's current time.
func (s *Signer) LoginFrame(channel string) ([]byte, error) {
	if channel != loginChannelSpot && channel != loginChannelFutures {
		return nil, errs.New(errs.ExchangeGateio, errs.CodeInvalid,
			errs.WithMessage("unknown login channel"), errs.WithRawMessage(channel))
	}
	ts := s.now().Unix()
	frame := loginFrame{
		Time:    ts,
		Channel: channel,
		Event:   "api",
		Payload: loginPayload{
			APIKey:    s.key,
			ReqID:     s.account,
			Timestamp: strconv.FormatInt(ts, 10),
			Signature: s.Sign(channel, ts),
		},
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, errs.New(errs.ExchangeGateio, errs.CodeInvalid,
			errs.WithMessage("marshal login frame"), errs.WithCause(err))
	}
	return payload, nil
}
