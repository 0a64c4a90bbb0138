package sdp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOfferExtractsRequiredFields(t *testing.T) {
	offer := "v=0\r\na=ice-ufrag:abc\r\na=ice-pwd:xyz\r\na=mid:0\r\n"
	o, err := ParseOffer(offer)
	require.NoError(t, err)
	assert.Equal(t, "abc", o.IceUfrag)
	assert.Equal(t, "xyz", o.IcePwd)
	assert.Equal(t, "0", o.Mid)
}

func TestParseOfferAcceptsLFOnly(t *testing.T) {
	offer := "v=0\na=ice-ufrag:abc\na=ice-pwd:xyz\na=mid:0\n"
	o, err := ParseOffer(offer)
	require.NoError(t, err)
	assert.Equal(t, "abc", o.IceUfrag)
}

func TestParseOfferMissingFieldFails(t *testing.T) {
	offer := "v=0\r\na=ice-ufrag:abc\r\na=mid:0\r\n"
	_, err := ParseOffer(offer)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, MissingField, perr.Reason)
	assert.Equal(t, "a=ice-pwd", perr.Field)
}

func TestParseOfferTruncatesLongLines(t *testing.T) {
	long := "a=ice-ufrag:" + strings.Repeat("a", 600)
	offer := long + "\r\na=ice-pwd:xyz\r\na=mid:0\r\n"
	o, err := ParseOffer(offer)
	require.NoError(t, err)
	assert.Len(t, o.IceUfrag, maxLineLength-len("a=ice-ufrag:"))
}

func TestRenderAnswerProducesValidJSONSchema(t *testing.T) {
	out, err := RenderAnswer("AB:CD", "203.0.113.5", false, 9000, "srvuser", "srvpass", "0")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	answer, ok := doc["answer"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "answer", answer["type"])
	sdpText, _ := answer["sdp"].(string)
	assert.Contains(t, sdpText, "a=setup:passive")
	assert.Contains(t, sdpText, "a=ice-lite")
	assert.Contains(t, sdpText, "a=mid:0")
	assert.Contains(t, sdpText, "a=fingerprint:sha-256 AB:CD")

	candidate, ok := doc["candidate"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0", candidate["sdpMid"])
	assert.Equal(t, float64(0), candidate["sdpMLineIndex"])
}

func TestRenderAnswerIPv6UsesIP6Family(t *testing.T) {
	out, err := RenderAnswer("AB", "::1", true, 9000, "u", "p", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "IN IP6 ::1")
}
