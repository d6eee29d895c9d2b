package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Polygon chain IDs.
const (
	ChainPolygon = 137
	ChainAmoy    = 80002
)

// Exchange contracts orders are signed against.
const (
	CTFExchange        = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskCTFExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

// ZeroAddress is the open taker.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

const (
	clobAuthDomainName    = "ClobAuthDomain"
	clobAuthDomainVersion = "1"
	clobAuthMessage       = "This message attests that I control the given wallet"
	exchangeDomainName    = "Polymarket CTF Exchange"
	exchangeDomainVersion = "1"
)

var (
	authDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	exchangeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// Order sides as encoded in the signed struct.
const (
	SideBuy  = 0
	SideSell = 1
)

// OrderPayload is the signed part of a CLOB order. Large integers travel as
// decimal strings.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`          // SideBuy or SideSell
	SignatureType int    `json:"signatureType"` // 0 = EOA
}

// Signer signs CLOB auth messages and orders with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	authDomain []byte
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
	s.authDomain = ethcrypto.Keccak256(concatBytes(
		authDomainTypeHash,
		ethcrypto.Keccak256([]byte(clobAuthDomainName)),
		ethcrypto.Keccak256([]byte(clobAuthDomainVersion)),
		bigIntTo32Bytes(big.NewInt(int64(chainID))),
	))
	return s, nil
}

// Address returns the wallet address of the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer targets.
func (s *Signer) ChainID() int { return s.chainID }

// SignAuthMessage signs the ClobAuth message used for L1 authentication.
func (s *Signer) SignAuthMessage(timestamp string, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(concatBytes(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(timestamp)),
		bigIntTo32Bytes(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	))
	return s.signDigest(eip712Hash(s.authDomain, structHash))
}

// SignOrder signs order against the given exchange contract.
func (s *Signer) SignOrder(order OrderPayload, exchange string) (string, error) {
	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}
	return s.signDigest(eip712Hash(s.exchangeDomain(exchange), structHash))
}

func (s *Signer) exchangeDomain(exchange string) []byte {
	return ethcrypto.Keccak256(concatBytes(
		exchangeDomainTypeHash,
		ethcrypto.Keccak256([]byte(exchangeDomainName)),
		ethcrypto.Keccak256([]byte(exchangeDomainVersion)),
		bigIntTo32Bytes(big.NewInt(int64(s.chainID))),
		common.LeftPadBytes(common.HexToAddress(exchange).Bytes(), 32),
	))
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

// signDigest returns the 65-byte r||s||v signature as 0x-prefixed hex.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; EIP-712 verifiers expect {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	fields := []struct {
		name, value string
	}{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	ints := make(map[string]*big.Int, len(fields))
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.value, 10)
		if !ok {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", f.name, f.value)
		}
		ints[f.name] = n
	}

	return ethcrypto.Keccak256(concatBytes(
		orderTypeHash,
		bigIntTo32Bytes(ints["salt"]),
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		bigIntTo32Bytes(ints["tokenId"]),
		bigIntTo32Bytes(ints["makerAmount"]),
		bigIntTo32Bytes(ints["takerAmount"]),
		bigIntTo32Bytes(ints["expiration"]),
		bigIntTo32Bytes(ints["nonce"]),
		bigIntTo32Bytes(ints["feeRateBps"]),
		bigIntTo32Bytes(big.NewInt(int64(o.Side))),
		bigIntTo32Bytes(big.NewInt(int64(o.SignatureType))),
	)), nil
}

func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
