package cloud

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"
)

// srpServer plays the user pool side of the exchange so the client math
// can be checked end to end.
type srpServer struct {
	poolName string
	userID   string
	saltHex  string
	v        *big.Int
	b        *big.Int
	bigB     *big.Int
}

func newSRPServer(t *testing.T, poolID, userID, password string) *srpServer {
	t.Helper()

	_, poolName, _ := strings.Cut(poolID, "_")

	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)
	saltHex := hex.EncodeToString(salt)

	userPass := sha256.Sum256([]byte(poolName + userID + ":" + password))
	x := hexToBig(hexHash(padHexString(saltHex) + hex.EncodeToString(userPass[:])))
	v := new(big.Int).Exp(srpG, x, srpN)

	bBytes := make([]byte, 128)
	_, err = rand.Read(bBytes)
	require.NoError(t, err)
	b := new(big.Int).Mod(new(big.Int).SetBytes(bBytes), srpN)

	// B = k*v + g^b mod N
	bigB := new(big.Int).Mul(srpK, v)
	bigB.Add(bigB, new(big.Int).Exp(srpG, b, srpN))
	bigB.Mod(bigB, srpN)

	return &srpServer{poolName: poolName, userID: userID, saltHex: saltHex, v: v, b: b, bigB: bigB}
}

func (s *srpServer) challenge(secretBlock []byte) map[string]string {
	return map[string]string{
		"USER_ID_FOR_SRP": s.userID,
		"SALT":            s.saltHex,
		"SRP_B":           s.bigB.Text(16),
		"SECRET_BLOCK":    base64.StdEncoding.EncodeToString(secretBlock),
	}
}

// signature computes the PASSWORD_CLAIM_SIGNATURE the server expects.
func (s *srpServer) signature(t *testing.T, srpA string, secretBlock []byte, timestamp string) string {
	t.Helper()

	bigA, ok := new(big.Int).SetString(srpA, 16)
	require.True(t, ok)

	u := hexToBig(hexHash(padHex(bigA) + padHex(s.bigB)))

	// S = (A * v^u)^b mod N
	base := new(big.Int).Mul(bigA, new(big.Int).Exp(s.v, u, srpN))
	base.Mod(base, srpN)
	secret := new(big.Int).Exp(base, s.b, srpN)

	ikm, _ := hex.DecodeString(padHex(secret))
	salt, _ := hex.DecodeString(padHex(u))
	key := make([]byte, 16)
	_, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(hkdfInfo)), key)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(s.poolName))
	mac.Write([]byte(s.userID))
	mac.Write(secretBlock)
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSRPPasswordClaimMatchesServer(t *testing.T) {
	t.Parallel()

	const poolID = "us-west-2_TestPool"
	server := newSRPServer(t, poolID, "9f2c-user-id", "correct horse")
	block := []byte("opaque secret block from cognito")

	client, err := newSRPSessionRandom(poolID)
	require.NoError(t, err)

	now := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC)
	claim, err := client.passwordClaim(server.challenge(block), "correct horse", now)
	require.NoError(t, err)

	require.Equal(t, "Tue Mar 5 07:08:09 UTC 2024", claim["TIMESTAMP"])
	require.Equal(t, "9f2c-user-id", claim["USERNAME"])
	require.Equal(t, base64.StdEncoding.EncodeToString(block), claim["PASSWORD_CLAIM_SECRET_BLOCK"])
	require.Equal(t, server.signature(t, client.srpA(), block, claim["TIMESTAMP"]), claim["PASSWORD_CLAIM_SIGNATURE"])
}

func TestSRPWrongPasswordDiverges(t *testing.T) {
	t.Parallel()

	const poolID = "us-west-2_TestPool"
	server := newSRPServer(t, poolID, "user", "right")
	block := []byte("block")

	client, err := newSRPSessionRandom(poolID)
	require.NoError(t, err)

	claim, err := client.passwordClaim(server.challenge(block), "wrong", time.Now())
	require.NoError(t, err)
	require.NotEqual(t, server.signature(t, client.srpA(), block, claim["TIMESTAMP"]), claim["PASSWORD_CLAIM_SIGNATURE"])
}

func TestSRPRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := newSRPSessionRandom("nounderscore")
	require.Error(t, err)

	client, err := newSRPSessionRandom("us-west-2_Pool")
	require.NoError(t, err)

	_, err = client.passwordClaim(map[string]string{"USER_ID_FOR_SRP": "u"}, "p", time.Now())
	require.Error(t, err)

	// B that is a multiple of N is refused
	_, err = client.passwordClaim(map[string]string{
		"USER_ID_FOR_SRP": "u",
		"SALT":            "ab",
		"SRP_B":           srpN.Text(16),
		"SECRET_BLOCK":    "AAAA",
	}, "p", time.Now())
	require.ErrorIs(t, err, errBadServerB)
}

func TestPadHex(t *testing.T) {
	t.Parallel()

	require.Equal(t, "02", padHex(big.NewInt(2)))
	require.Equal(t, "7f", padHex(big.NewInt(0x7f)))
	require.Equal(t, "0080", padHex(big.NewInt(0x80)))
	require.Equal(t, "0abc", padHexString("abc"))
	require.True(t, strings.HasPrefix(padHex(srpN), "00ff"))
}
