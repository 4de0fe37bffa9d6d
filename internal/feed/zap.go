package feed

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/nostr"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

// bolt11AmountPattern captures the human-readable amount from a Lightning
// invoice prefix: ln + network + digits + optional unit letter.
var bolt11AmountPattern = regexp.MustCompile(`^ln(?:bc|tb|bcrt)(\d+)([munp]?)`)

// DecodeZapAmountSats extracts the satoshi amount from a zap receipt.
// Priority: the bolt11 invoice, then the amount tag (millisats) on the
// embedded zap request, then an amount tag on the receipt itself, then
// zero. Malformed inputs fall through the chain; this never fails.
func DecodeZapAmountSats(receipt *types.Event) int64 {
	if invoice := nostr.GetTagValue(receipt.Tags, "bolt11"); invoice != "" {
		if sats, ok := parseBolt11AmountSats(invoice); ok {
			return sats
		}
	}

	if desc := nostr.GetTagValue(receipt.Tags, "description"); desc != "" {
		var request types.Event
		if err := json.Unmarshal([]byte(desc), &request); err == nil {
			if sats, ok := parseMsatTag(request.Tags); ok {
				return sats
			}
		} else {
			slog.Debug("zap: malformed request payload", "receipt", nostr.ShortID(receipt.ID))
		}
	}

	if sats, ok := parseMsatTag(receipt.Tags); ok {
		return sats
	}

	return 0
}

// parseBolt11AmountSats reads the amount encoded in an invoice's
// human-readable part. The unit letter scales the raw number:
// none = whole BTC, m = milli, u = micro, n = nano, p = pico.
func parseBolt11AmountSats(invoice string) (int64, bool) {
	match := bolt11AmountPattern.FindStringSubmatch(strings.ToLower(invoice))
	if match == nil {
		return 0, false
	}

	amount, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, false
	}

	switch match[2] {
	case "":
		return amount * 100_000_000, true
	case "m":
		return amount * 100_000, true
	case "u":
		return amount * 100, true
	case "n":
		return amount / 10, true
	case "p":
		return amount / 10_000, true
	}
	return 0, false
}

// parseMsatTag reads an "amount" tag holding millisatoshis.
func parseMsatTag(tags [][]string) (int64, bool) {
	raw := nostr.GetTagValue(tags, "amount")
	if raw == "" {
		return 0, false
	}
	msats, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || msats < 0 {
		return 0, false
	}
	return msats / 1000, true
}

// ZapSenderPubkey returns the zap's actual sender: the author of the
// embedded request, not the LNURL provider that published the receipt.
func ZapSenderPubkey(receipt *types.Event) string {
	if desc := nostr.GetTagValue(receipt.Tags, "description"); desc != "" {
		var request types.Event
		if err := json.Unmarshal([]byte(desc), &request); err == nil && request.PubKey != "" {
			return request.PubKey
		}
	}
	return receipt.PubKey
}

// ZapComment returns the message the sender attached, if any.
func ZapComment(receipt *types.Event) string {
	if desc := nostr.GetTagValue(receipt.Tags, "description"); desc != "" {
		var request types.Event
		if err := json.Unmarshal([]byte(desc), &request); err == nil {
			return request.Content
		}
	}
	return ""
}
