package cloud

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// 3072-bit group from RFC 5054, as used by Cognito user pools.
const srpNHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
	"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
	"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
	"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
	"43DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

const (
	hkdfInfo = "Caldera Derived Key"

	// timestampLayout matches what Cognito expects in TIMESTAMP: no zero
	// padding on the day of month.
	timestampLayout = "Mon Jan 2 15:04:05 UTC 2006"
)

var (
	srpN = hexToBig(srpNHex)
	srpG = big.NewInt(2)
	srpK = hexToBig(hexHash(padHex(srpN) + padHex(srpG)))
)

var (
	errBadServerB  = errors.New("cloud: srp: server public value is invalid")
	errBadScramble = errors.New("cloud: srp: scrambling parameter is zero")
)

// srpSession is the client half of one USER_SRP_AUTH exchange.
type srpSession struct {
	poolName string
	a        *big.Int
	bigA     *big.Int
}

// newSRPSession draws a fresh ephemeral secret. poolID has the form
// "<region>_<name>"; only the name part enters the password hash.
func newSRPSession(poolID string, random io.Reader) (*srpSession, error) {
	_, name, ok := strings.Cut(poolID, "_")
	if !ok || name == "" {
		return nil, fmt.Errorf("cloud: srp: malformed user pool id %q", poolID)
	}

	for {
		buf := make([]byte, 128)
		if _, err := io.ReadFull(random, buf); err != nil {
			return nil, err
		}

		a := new(big.Int).Mod(new(big.Int).SetBytes(buf), srpN)
		bigA := new(big.Int).Exp(srpG, a, srpN)
		if bigA.Sign() != 0 {
			return &srpSession{poolName: name, a: a, bigA: bigA}, nil
		}
	}
}

// srpA is the SRP_A auth parameter.
func (s *srpSession) srpA() string {
	return s.bigA.Text(16)
}

// passwordClaim answers a PASSWORD_VERIFIER challenge. params are the
// challenge parameters returned by InitiateAuth.
func (s *srpSession) passwordClaim(params map[string]string, password string, now time.Time) (map[string]string, error) {
	userID := params["USER_ID_FOR_SRP"]
	saltHex := params["SALT"]
	secretBlock := params["SECRET_BLOCK"]

	if userID == "" || saltHex == "" || params["SRP_B"] == "" || secretBlock == "" {
		return nil, errors.New("cloud: srp: incomplete PASSWORD_VERIFIER challenge")
	}

	bigB, ok := new(big.Int).SetString(params["SRP_B"], 16)
	if !ok || new(big.Int).Mod(bigB, srpN).Sign() == 0 {
		return nil, errBadServerB
	}

	key, err := s.passwordAuthKey(userID, password, bigB, saltHex)
	if err != nil {
		return nil, err
	}

	block, err := base64.StdEncoding.DecodeString(secretBlock)
	if err != nil {
		return nil, fmt.Errorf("cloud: srp: decode secret block: %w", err)
	}

	timestamp := now.UTC().Format(timestampLayout)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(s.poolName))
	mac.Write([]byte(userID))
	mac.Write(block)
	mac.Write([]byte(timestamp))

	return map[string]string{
		"TIMESTAMP":                   timestamp,
		"USERNAME":                    userID,
		"PASSWORD_CLAIM_SECRET_BLOCK": secretBlock,
		"PASSWORD_CLAIM_SIGNATURE":    base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

// passwordAuthKey derives the 16 byte HMAC key shared with the server.
func (s *srpSession) passwordAuthKey(userID, password string, bigB *big.Int, saltHex string) ([]byte, error) {
	u := hexToBig(hexHash(padHex(s.bigA) + padHex(bigB)))
	if u.Sign() == 0 {
		return nil, errBadScramble
	}

	if _, err := hex.DecodeString(padHexString(saltHex)); err != nil {
		return nil, fmt.Errorf("cloud: srp: decode salt: %w", err)
	}

	userPass := sha256.Sum256([]byte(s.poolName + userID + ":" + password))
	x := hexToBig(hexHash(padHexString(saltHex) + hex.EncodeToString(userPass[:])))

	// S = (B - k * g^x) ^ (a + u * x) mod N
	gx := new(big.Int).Exp(srpG, x, srpN)
	base := new(big.Int).Sub(bigB, new(big.Int).Mul(srpK, gx))
	base.Mod(base, srpN)

	exp := new(big.Int).Add(s.a, new(big.Int).Mul(u, x))
	secret := new(big.Int).Exp(base, exp, srpN)

	ikm, err := hex.DecodeString(padHex(secret))
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(padHex(u))
	if err != nil {
		return nil, err
	}

	key := make([]byte, 16)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func newSRPSessionRandom(poolID string) (*srpSession, error) {
	return newSRPSession(poolID, rand.Reader)
}

func hexToBig(h string) *big.Int {
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		panic("cloud: srp: invalid hex constant")
	}
	return n
}

// hexHash is the hex SHA-256 of the bytes encoded by h.
func hexHash(h string) string {
	b, err := hex.DecodeString(h)
	if err != nil {
		panic("cloud: srp: invalid hex input")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// padHex encodes n as an even-length hex string whose high bit is clear, so
// it reads as a positive two's-complement value.
func padHex(n *big.Int) string {
	return padHexString(n.Text(16))
}

func padHexString(h string) string {
	switch {
	case len(h)%2 == 1:
		return "0" + h
	case len(h) > 0 && strings.ContainsRune("89abcdefABCDEF", rune(h[0])):
		return "00" + h
	default:
		return h
	}
}
