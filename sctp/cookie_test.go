package sctp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCookie() *stateCookie {
	return &stateCookie{
		Init:      &chunkInit{chunkInitCommon{InitiateTag: 111, AdvertisedRwnd: 1 << 16, NumOutboundStreams: 10, NumInboundStreams: 10, InitialTSN: 500}},
		InitAck:   &chunkInitAck{chunkInitCommon{InitiateTag: 222, AdvertisedRwnd: 1 << 16, NumOutboundStreams: 10, NumInboundStreams: 10, InitialTSN: 900}},
		MyVtag:    222,
		PeerVtag:  111,
		SrcPort:   100,
		DstPort:   200,
		PeerAddr:  net.ParseIP("192.0.2.1").To4(),
		Timestamp: 123456789,
	}
}

func TestStateCookieRoundTrip(t *testing.T) {
	secret := []byte("top secret server key")
	cookie := testCookie()

	raw, err := cookie.encode(secret)
	require.NoError(t, err)

	decoded, err := decodeStateCookie(raw, secret)
	require.NoError(t, err)

	require.Equal(t, cookie.MyVtag, decoded.MyVtag)
	require.Equal(t, cookie.PeerVtag, decoded.PeerVtag)
	require.Equal(t, cookie.SrcPort, decoded.SrcPort)
	require.Equal(t, cookie.DstPort, decoded.DstPort)
	require.Equal(t, cookie.Timestamp, decoded.Timestamp)
	require.True(t, cookie.PeerAddr.Equal(decoded.PeerAddr))
	require.Equal(t, cookie.Init.InitiateTag, decoded.Init.InitiateTag)
	require.Equal(t, cookie.InitAck.InitialTSN, decoded.InitAck.InitialTSN)
}

func TestStateCookieWrongSecretFailsClosed(t *testing.T) {
	cookie := testCookie()
	raw, err := cookie.encode([]byte("server secret one"))
	require.NoError(t, err)

	_, err = decodeStateCookie(raw, []byte("server secret two"))
	require.ErrorIs(t, err, ErrInvalidChunk)
}

func TestStateCookieTamperedBodyFailsClosed(t *testing.T) {
	secret := []byte("server secret")
	cookie := testCookie()
	raw, err := cookie.encode(secret)
	require.NoError(t, err)

	raw[0] ^= 0xFF
	_, err = decodeStateCookie(raw, secret)
	require.ErrorIs(t, err, ErrInvalidChunk)
}

func TestStateCookieTooShortRejected(t *testing.T) {
	_, err := decodeStateCookie([]byte{1, 2, 3}, []byte("secret"))
	require.ErrorIs(t, err, ErrInvalidChunk)
}
