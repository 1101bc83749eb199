/*
cardnumber.go - Loan card number synthesis

PURPOSE:
  Every approved loan gets a 16-digit card number encoding where it
  came from, plus a checksum digit:

    [0]     digit count of the family id
    [1]     leading digit of the family id
    [2]     trailing digit of the family id
    [3]     last digit of the product id
    [4]     last digit of the approving guardian's id
    [5]     marker digit (always 3)
    [6..14] nine random digits
    [15]    checksum

  The checksum sum seeds from the structural digits (digit count,
  leading family digit doubled, product digit, guardian digit doubled,
  marker — the trailing family digit is not weighed), then adds each
  random digit doubled at an even position index and singly at an odd
  one. The final digit is (10 - sum mod 10) mod 10.

UNIQUENESS:
  Generation is a retry loop against the set of all ever-issued
  numbers. This is not cryptographic; nine random digits just make
  collisions vanishingly rare. The loop is bounded: after MaxAttempts
  draws it fails with ErrCardExhausted instead of spinning. The store
  additionally enforces uniqueness at insert time, so two concurrent
  approvals drawing the same number cannot both commit.
*/
package finance

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DefaultMaxCardAttempts bounds the uniqueness retry loop.
const DefaultMaxCardAttempts = 100

const cardNumberLength = 16

// cardMarker is the fixed structural digit between the id fragments
// and the random tail.
const cardMarker = 3

// CardIndex is the slice of Store the generator needs.
type CardIndex interface {
	CardNumberExists(ctx context.Context, number string) (bool, error)
}

// CardNumberGenerator produces unique card numbers for approved loans.
// Safe for concurrent use.
type CardNumberGenerator struct {
	MaxAttempts int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCardNumberGenerator seeds from the clock. Tests may pass a fixed
// source via NewCardNumberGeneratorWithRand.
func NewCardNumberGenerator() *CardNumberGenerator {
	return NewCardNumberGeneratorWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewCardNumberGeneratorWithRand(rng *rand.Rand) *CardNumberGenerator {
	return &CardNumberGenerator{MaxAttempts: DefaultMaxCardAttempts, rng: rng}
}

// Generate draws card numbers until one is unused, checking each draw
// against the index. Returns ErrCardExhausted after MaxAttempts draws.
func (g *CardNumberGenerator) Generate(ctx context.Context, idx CardIndex, family FamilyID, product ProductID, guardian UserID) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxCardAttempts
	}

	for i := 0; i < attempts; i++ {
		number := g.compose(family, product, guardian)
		taken, err := idx.CardNumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("card number lookup: %w", err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", fmt.Errorf("no unused card number in %d draws: %w", attempts, ErrCardExhausted)
}

func (g *CardNumberGenerator) compose(family FamilyID, product ProductID, guardian UserID) string {
	fam := int64(family)
	trailing := int(fam % 10)
	leading := fam
	digitCount := 1
	for leading >= 10 {
		leading /= 10
		digitCount++
	}
	productLast := int(int64(product) % 10)
	guardianLast := int(int64(guardian) % 10)

	var sb strings.Builder
	sb.Grow(cardNumberLength)
	fmt.Fprintf(&sb, "%d%d%d%d%d%d", digitCount, leading, trailing, productLast, guardianLast, cardMarker)

	sum := digitCount + int(leading)*2 + productLast + guardianLast*2 + cardMarker

	g.mu.Lock()
	for i := 0; i < 9; i++ {
		d := g.rng.Intn(10)
		sb.WriteByte(byte('0' + d))
		if i%2 == 0 {
			sum += d * 2
		} else {
			sum += d
		}
	}
	g.mu.Unlock()

	sb.WriteByte(byte('0' + (10-sum%10)%10))
	return sb.String()
}

// ValidCardNumber reports whether a 16-digit card number carries a
// correct checksum digit for its structural and random digits.
func ValidCardNumber(number string) bool {
	if len(number) != cardNumberLength {
		return false
	}
	digits := make([]int, cardNumberLength)
	for i := 0; i < cardNumberLength; i++ {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
	}
	if digits[5] != cardMarker {
		return false
	}

	// digits[2], the trailing family digit, carries no weight.
	sum := digits[0] + digits[1]*2 + digits[3] + digits[4]*2 + digits[5]
	for i := 0; i < 9; i++ {
		d := digits[6+i]
		if i%2 == 0 {
			sum += d * 2
		} else {
			sum += d
		}
	}
	return digits[15] == (10-sum%10)%10
}
