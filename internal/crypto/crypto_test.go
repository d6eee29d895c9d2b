package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key; never funded on mainnet.
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testOrder() OrderPayload {
	return OrderPayload{
		Salt:          "123456789",
		Maker:         testAddress,
		Signer:        testAddress,
		Taker:         ZeroAddress,
		TokenID:       "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount:   "96000000",
		TakerAmount:   "100000000",
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          SideBuy,
		SignatureType: 0,
	}
}

func TestSignerAddress(t *testing.T) {
	s, err := NewSigner("0x"+testKey, ChainPolygon)
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address().Hex())
	assert.Equal(t, ChainPolygon, s.ChainID())

	_, err = NewSigner("not-hex", ChainPolygon)
	assert.Error(t, err)
}

func TestSignOrderRecoversSigner(t *testing.T) {
	s, err := NewSigner(testKey, ChainPolygon)
	require.NoError(t, err)

	order := testOrder()
	sigHex, err := s.SignOrder(order, CTFExchange)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sigHex, "0x"))

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	structHash, err := orderStructHash(order)
	require.NoError(t, err)
	digest := eip712Hash(s.exchangeDomain(CTFExchange), structHash)

	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, ethcrypto.PubkeyToAddress(*pub).Hex())
}

func TestSignOrderDependsOnExchange(t *testing.T) {
	s, err := NewSigner(testKey, ChainPolygon)
	require.NoError(t, err)

	a, err := s.SignOrder(testOrder(), CTFExchange)
	require.NoError(t, err)
	b, err := s.SignOrder(testOrder(), NegRiskCTFExchange)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSignOrderRejectsBadIntegers(t *testing.T) {
	s, err := NewSigner(testKey, ChainPolygon)
	require.NoError(t, err)

	order := testOrder()
	order.MakerAmount = "1.5"
	_, err = s.SignOrder(order, CTFExchange)
	assert.ErrorContains(t, err, "makerAmount")
}

func TestL1Headers(t *testing.T) {
	s, err := NewSigner(testKey, ChainPolygon)
	require.NoError(t, err)

	h, err := s.L1Headers(1700000000, 0)
	require.NoError(t, err)
	assert.Equal(t, testAddress, h["POLY_ADDRESS"])
	assert.Equal(t, "1700000000", h["POLY_TIMESTAMP"])
	assert.Equal(t, "0", h["POLY_NONCE"])
	assert.Len(t, h["POLY_SIGNATURE"], 132)
}

func TestL2HeadersAt(t *testing.T) {
	secret := []byte("super-secret-value")
	creds := Credentials{
		Key:        "key-1",
		Secret:     base64.URLEncoding.EncodeToString(secret),
		Passphrase: "pass",
	}
	require.True(t, creds.Valid())

	h, err := creds.L2HeadersAt(testAddress, "post", "/order", `{"a":1}`, 1700000000)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(`1700000000POST/order{"a":1}`))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, h["POLY_SIGNATURE"])
	assert.Equal(t, "key-1", h["POLY_API_KEY"])
	assert.Equal(t, "pass", h["POLY_PASSPHRASE"])
	assert.Equal(t, "1700000000", h["POLY_TIMESTAMP"])
	assert.Equal(t, testAddress, h["POLY_ADDRESS"])
}

func TestCredentialsRedacted(t *testing.T) {
	c := Credentials{Key: "abcdefgh", Secret: "s3cr3tvalue", Passphrase: "p"}
	out := c.String()
	assert.NotContains(t, out, "s3cr3tvalue")
	assert.Contains(t, out, "abcd****")
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2", 1000)
	require.NoError(t, err)
	assert.Contains(t, string(blob), testAddress)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey(testKey, "", 1000)
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw", 1000)
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	blob, err := EncryptKey(testKey, "pw", 1000)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	k, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}
