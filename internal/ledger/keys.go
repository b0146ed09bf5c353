package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/domain/transaction"
)

// Cache keys are laid out as ledger:<user>:<family>:<detail> so a write can drop
// a whole family with one prefix invalidation.

// UserPrefix covers every cached entry of a user
func UserPrefix(userID uuid.UUID) string {
	return "ledger:" + userID.String() + ":"
}

// TransactionsPrefix covers cached listings and lookups of a user's transactions
func TransactionsPrefix(userID uuid.UUID) string {
	return UserPrefix(userID) + "transactions:"
}

// SummaryPrefix covers cached reports derived from a user's transactions
func SummaryPrefix(userID uuid.UUID) string {
	return UserPrefix(userID) + "summary:"
}

// AccountsPrefix covers cached account reads
func AccountsPrefix(userID uuid.UUID) string {
	return UserPrefix(userID) + "accounts"
}

// GenerationKey holds the counter versioning every cached read of a user. It
// lives outside UserPrefix so prefix invalidation never resets it.
func GenerationKey(userID uuid.UUID) string {
	return "ledger:generation:" + userID.String()
}

// PendingProvisioningKey marks a registered user whose account is still to be provisioned
func PendingProvisioningKey(userID uuid.UUID) string {
	return "ledger:pending-provisioning:" + userID.String()
}

func recentKey(userID uuid.UUID) string {
	return TransactionsPrefix(userID) + "recent"
}

func transactionKey(userID, id uuid.UUID) string {
	return TransactionsPrefix(userID) + "id:" + id.String()
}

func pageKey(userID uuid.UUID, filters transaction.FilterOptions, page transaction.PaginationOptions) string {
	return TransactionsPrefix(userID) + "page:" + fingerprint(filters, page)
}

func expensesKey(userID uuid.UUID) string {
	return SummaryPrefix(userID) + "expenses"
}

func monthlyKey(userID uuid.UUID, months int) string {
	return SummaryPrefix(userID) + "monthly:" + strconv.Itoa(months)
}

func accountsKey(userID uuid.UUID) string {
	return AccountsPrefix(userID) + ":list"
}

// fingerprint hashes the listing parameters. Struct fields marshal in declaration
// order, so equal parameters always produce equal keys.
func fingerprint(filters transaction.FilterOptions, page transaction.PaginationOptions) string {
	raw, _ := json.Marshal(struct {
		Filters transaction.FilterOptions     `json:"f"`
		Page    transaction.PaginationOptions `json:"p"`
	}{filters, page})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}
