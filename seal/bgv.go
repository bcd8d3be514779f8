package seal

import (
	"encoding/base64"
	"fmt"
	"math"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"

	"github.com/loserner/CipherTrace/ledger"
)

// Slot layout of a sealed value. 64-bit scalars are decomposed into four
// 16-bit limbs so every slot stays below the plaintext modulus.
const (
	limbsPerScalar = 4
	limbBits       = 16
	limbMask       = (1 << limbBits) - 1

	slotAmount = 0 // amount, quantized to gwei
	slotGas    = limbsPerScalar
	slotTime   = 2 * limbsPerScalar
	slotTag    = 3 * limbsPerScalar

	tagTransaction = 1
	tagScore       = 2

	// gweiPerEther is the quantization step for amounts.
	gweiPerEther = 1e9
	// scoreScale is the fixed-point step for scores.
	scoreScale = 100
)

// paramsLiteral returns the BGV parameter set used for sealing: ring degree
// 2^13 at around 128-bit security, with an NTT-friendly 17-bit plaintext
// modulus. One 54-bit ciphertext prime; the special prime keeps the set
// usable if key-switching is added later.
func paramsLiteral() bgv.ParametersLiteral {
	return bgv.ParametersLiteral{
		LogN:             13,
		LogQ:             []int{54},
		LogP:             []int{54},
		PlaintextModulus: 65537,
	}
}

// BGVSealer seals values under lattigo BGV. The keypair is generated at
// construction; whichever process constructs the sealer is the only party
// able to reveal.
type BGVSealer struct {
	params bgv.Parameters
	sk     *rlwe.SecretKey
	pk     *rlwe.PublicKey

	mu        sync.Mutex
	encoder   *bgv.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
}

// NewBGVSealer generates a fresh keypair and the encode/encrypt/decrypt
// machinery around it.
func NewBGVSealer() (*BGVSealer, error) {
	params, err := bgv.NewParametersFromLiteral(paramsLiteral())
	if err != nil {
		return nil, fmt.Errorf("building BGV parameters: %w", err)
	}
	kgen := bgv.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()

	return &BGVSealer{
		params:    params,
		sk:        sk,
		pk:        pk,
		encoder:   bgv.NewEncoder(params),
		encryptor: bgv.NewEncryptor(params, pk),
		decryptor: bgv.NewDecryptor(params, sk),
	}, nil
}

func (s *BGVSealer) SealTransaction(tx ledger.TransactionData) (string, error) {
	if tx.Amount < 0 || tx.Timestamp < 0 {
		return "", fmt.Errorf("%w: negative scalar", ErrBadHandle)
	}
	vec := make([]uint64, slotTag+1)
	putScalar(vec, slotAmount, uint64(math.Round(tx.Amount*gweiPerEther)))
	putScalar(vec, slotGas, tx.GasUsed)
	putScalar(vec, slotTime, uint64(tx.Timestamp))
	vec[slotTag] = tagTransaction
	return s.seal(vec)
}

func (s *BGVSealer) RevealTransaction(handle string) (ledger.TransactionData, error) {
	var tx ledger.TransactionData
	vec, err := s.reveal(handle)
	if err != nil {
		return tx, err
	}
	if vec[slotTag] != tagTransaction {
		return tx, fmt.Errorf("%w: not a sealed transaction", ErrBadHandle)
	}
	tx.Amount = float64(getScalar(vec, slotAmount)) / gweiPerEther
	tx.GasUsed = getScalar(vec, slotGas)
	tx.Timestamp = int64(getScalar(vec, slotTime))
	return tx, nil
}

func (s *BGVSealer) SealScore(score float64) (string, error) {
	if score < 0 {
		return "", fmt.Errorf("%w: negative score", ErrBadHandle)
	}
	vec := make([]uint64, slotTag+1)
	putScalar(vec, slotAmount, uint64(math.Round(score*scoreScale)))
	vec[slotTag] = tagScore
	return s.seal(vec)
}

func (s *BGVSealer) RevealScore(handle string) (float64, error) {
	vec, err := s.reveal(handle)
	if err != nil {
		return 0, err
	}
	if vec[slotTag] != tagScore {
		return 0, fmt.Errorf("%w: not a sealed score", ErrBadHandle)
	}
	return float64(getScalar(vec, slotAmount)) / scoreScale, nil
}

func (s *BGVSealer) seal(vec []uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt := bgv.NewPlaintext(s.params, s.params.MaxLevel())
	if err := s.encoder.Encode(vec, pt); err != nil {
		return "", fmt.Errorf("encoding plaintext: %w", err)
	}
	ct, err := s.encryptor.EncryptNew(pt)
	if err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	raw, err := ct.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshaling ciphertext: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (s *BGVSealer) reveal(handle string) ([]uint64, error) {
	raw, err := base64.StdEncoding.DecodeString(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandle, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ct := rlwe.NewCiphertext(s.params, 1)
	if err := ct.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandle, err)
	}

	pt := s.decryptor.DecryptNew(ct)
	vec := make([]uint64, s.params.MaxSlots())
	if err := s.encoder.Decode(pt, vec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandle, err)
	}
	return vec, nil
}

func putScalar(vec []uint64, offset int, v uint64) {
	for i := 0; i < limbsPerScalar; i++ {
		vec[offset+i] = (v >> (limbBits * i)) & limbMask
	}
}

func getScalar(vec []uint64, offset int) uint64 {
	var v uint64
	for i := 0; i < limbsPerScalar; i++ {
		v |= vec[offset+i] << (limbBits * i)
	}
	return v
}
