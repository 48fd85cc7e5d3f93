package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"spendbook/internal/auth"
	"spendbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// UserTestSuite provides a test suite for the credential store
type UserTestSuite struct {
	suite.Suite
	db  *DB
	ctx context.Context
}

// SetupTest runs before each test
func (suite *UserTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()
}

// TearDownTest runs after each test
func (suite *UserTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *UserTestSuite) TestCreateAndFindUser() {
	user, err := suite.db.CreateUser(suite.ctx, "Alice", "a@x.com", "hash")
	require.NoError(suite.T(), err)
	assert.NotZero(suite.T(), user.ID)
	assert.Equal(suite.T(), "Alice", user.Name)

	byEmail, err := suite.db.GetUserByEmail(suite.ctx, "a@x.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), user.ID, byEmail.ID)

	byID, err := suite.db.GetUserByID(suite.ctx, user.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "a@x.com", byID.Email)
	assert.Equal(suite.T(), "hash", byID.PasswordHash)
}

func (suite *UserTestSuite) TestEmailIsNormalized() {
	_, err := suite.db.CreateUser(suite.ctx, "Alice", "  A@X.com ", "hash")
	require.NoError(suite.T(), err)

	user, err := suite.db.GetUserByEmail(suite.ctx, "a@x.COM")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "a@x.com", user.Email)
}

func (suite *UserTestSuite) TestDuplicateEmailRejected() {
	_, err := suite.db.CreateUser(suite.ctx, "Alice", "a@x.com", "hash")
	require.NoError(suite.T(), err)

	_, err = suite.db.CreateUser(suite.ctx, "Mallory", "A@x.com", "other")
	assert.ErrorIs(suite.T(), err, ErrDuplicateEmail)

	count, err := suite.db.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *UserTestSuite) TestUnknownUser() {
	_, err := suite.db.GetUserByEmail(suite.ctx, "nobody@x.com")
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	_, err = suite.db.GetUserByID(suite.ctx, 42)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

// ExpenseTestSuite provides a test suite for the expense store
type ExpenseTestSuite struct {
	suite.Suite
	db    *DB
	ctx   context.Context
	owner *models.User
	other *models.User
}

// SetupTest runs before each test
func (suite *ExpenseTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()

	suite.owner, err = db.CreateUser(suite.ctx, "Owner", "owner@x.com", "hash")
	require.NoError(suite.T(), err)
	suite.other, err = db.CreateUser(suite.ctx, "Other", "other@x.com", "hash")
	require.NoError(suite.T(), err)
}

// TearDownTest runs after each test
func (suite *ExpenseTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *ExpenseTestSuite) createN(ownerID int64, n int, base time.Time) {
	for i := 0; i < n; i++ {
		_, err := suite.db.CreateExpense(suite.ctx, ownerID, float64(i+1), "item", "food", base.Add(time.Duration(i)*time.Minute))
		require.NoError(suite.T(), err)
	}
}

func (suite *ExpenseTestSuite) TestCreateExpense() {
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e, err := suite.db.CreateExpense(suite.ctx, suite.owner.ID, 10.50, "Lunch", "food", date)
	require.NoError(suite.T(), err)
	assert.NotZero(suite.T(), e.ID)
	assert.Equal(suite.T(), suite.owner.ID, e.UserID)
	assert.Equal(suite.T(), 10.50, e.Amount)
	assert.True(suite.T(), date.Equal(e.Date), "date should round-trip, got %v", e.Date)
}

func (suite *ExpenseTestSuite) TestCreateExpenseDefaultsDate() {
	before := time.Now().Add(-time.Second)
	e, err := suite.db.CreateExpense(suite.ctx, suite.owner.ID, 3.5, "Coffee", "food", time.Time{})
	require.NoError(suite.T(), err)
	assert.True(suite.T(), e.Date.After(before), "date should default to now")
	assert.WithinDuration(suite.T(), time.Now(), e.Date, 5*time.Second)
}

func (suite *ExpenseTestSuite) TestCreateExpenseRequiresExistingOwner() {
	_, err := suite.db.CreateExpense(suite.ctx, 9999, 1, "Ghost", "other", time.Now())
	assert.Error(suite.T(), err)
}

func (suite *ExpenseTestSuite) TestListRecentExpensesLimitAndOrder() {
	base := time.Now().Add(-time.Hour)

	for _, n := range []int{0, 3, 5, 8} {
		suite.Run(fmt.Sprintf("n=%d", n), func() {
			user, err := suite.db.CreateUser(suite.ctx, "U", fmt.Sprintf("user%d@x.com", n), "hash")
			require.NoError(suite.T(), err)
			suite.createN(user.ID, n, base)

			recent, err := suite.db.ListRecentExpenses(suite.ctx, user.ID, 5)
			require.NoError(suite.T(), err)
			assert.Len(suite.T(), recent, min(n, 5))
			for i := 1; i < len(recent); i++ {
				assert.False(suite.T(), recent[i].Date.After(recent[i-1].Date), "dates must be non-increasing")
			}
		})
	}
}

func (suite *ExpenseTestSuite) TestListExpensesIsOwnerScoped() {
	base := time.Now().Add(-time.Hour)
	suite.createN(suite.owner.ID, 7, base)
	suite.createN(suite.other.ID, 2, base)

	all, err := suite.db.ListExpenses(suite.ctx, suite.owner.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), all, 7)
	for _, e := range all {
		assert.Equal(suite.T(), suite.owner.ID, e.UserID)
	}

	// Latest first: the last created expense has the largest amount.
	assert.Equal(suite.T(), 7.0, all[0].Amount)
	assert.Equal(suite.T(), 1.0, all[len(all)-1].Amount)
}

func (suite *ExpenseTestSuite) TestEarliestExpense() {
	_, err := suite.db.EarliestExpense(suite.ctx, suite.owner.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound, "no expenses means no earliest")

	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	_, err = suite.db.CreateExpense(suite.ctx, suite.owner.ID, 2, "middle", "food", base.Add(24*time.Hour))
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateExpense(suite.ctx, suite.owner.ID, 1, "first", "food", base)
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateExpense(suite.ctx, suite.owner.ID, 3, "last", "food", base.Add(48*time.Hour))
	require.NoError(suite.T(), err)

	earliest, err := suite.db.EarliestExpense(suite.ctx, suite.owner.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "first", earliest.Description)
	assert.True(suite.T(), base.Equal(earliest.Date))

	_, err = suite.db.EarliestExpense(suite.ctx, suite.other.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *ExpenseTestSuite) TestDeleteExpense() {
	e, err := suite.db.CreateExpense(suite.ctx, suite.owner.ID, 5, "Snack", "food", time.Now())
	require.NoError(suite.T(), err)

	err = suite.db.DeleteExpense(suite.ctx, suite.owner.ID, e.ID)
	require.NoError(suite.T(), err)

	_, err = suite.db.GetExpense(suite.ctx, suite.owner.ID, e.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *ExpenseTestSuite) TestDeleteMissingExpense() {
	err := suite.db.DeleteExpense(suite.ctx, suite.owner.ID, 12345)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *ExpenseTestSuite) TestDeleteOtherUsersExpense() {
	e, err := suite.db.CreateExpense(suite.ctx, suite.owner.ID, 5, "Snack", "food", time.Now())
	require.NoError(suite.T(), err)

	err = suite.db.DeleteExpense(suite.ctx, suite.other.ID, e.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	_, err = suite.db.GetExpense(suite.ctx, suite.owner.ID, e.ID)
	assert.NoError(suite.T(), err, "expense must survive a foreign delete")
}

// SessionTestSuite provides a test suite for session operations
type SessionTestSuite struct {
	suite.Suite
	db   *DB
	ctx  context.Context
	user *models.User
}

// SetupTest runs before each test
func (suite *SessionTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()

	// Create a test user
	password, err := auth.HashPassword("testpass")
	require.NoError(suite.T(), err, "failed to hash password")

	user, err := suite.db.CreateUser(suite.ctx, "Test User", "test@x.com", password)
	require.NoError(suite.T(), err, "failed to create test user")
	suite.user = user
}

// TearDownTest runs after each test
func (suite *SessionTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *SessionTestSuite) TestCreateAndValidateSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, expiresAt)
	require.NoError(suite.T(), err)

	info, err := suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.user.ID, info.UserID)

	// Check that last_activity is recent
	timeSinceActivity := time.Since(info.LastActivity)
	assert.Less(suite.T(), timeSinceActivity, 5*time.Second, "LastActivity should be recent")
}

func (suite *SessionTestSuite) TestExpiredSessionIsInvalid() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, time.Now().Add(-time.Minute))
	require.NoError(suite.T(), err)

	_, err = suite.db.ValidateSession(suite.ctx, token)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *SessionTestSuite) TestRenewSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	originalExpiry := time.Now().Add(30 * 24 * time.Hour)
	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, originalExpiry)
	require.NoError(suite.T(), err)

	// Wait a moment to ensure timestamps differ
	time.Sleep(10 * time.Millisecond)

	originalInfo, err := suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err)

	newExpiry := time.Now().Add(60 * 24 * time.Hour)
	err = suite.db.RenewSession(suite.ctx, token, newExpiry)
	require.NoError(suite.T(), err)

	updatedInfo, err := suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), updatedInfo.LastActivity.After(originalInfo.LastActivity),
		"LastActivity should be updated after renewal")
	assert.True(suite.T(), updatedInfo.ExpiresAt.After(originalInfo.ExpiresAt),
		"ExpiresAt should be extended after renewal")
}

func (suite *SessionTestSuite) TestDeleteSession() {
	token, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	err = suite.db.CreateSession(suite.ctx, token, suite.user.ID, time.Now().Add(time.Hour))
	require.NoError(suite.T(), err)

	_, err = suite.db.ValidateSession(suite.ctx, token)
	require.NoError(suite.T(), err, "session should exist before deletion")

	err = suite.db.DeleteSession(suite.ctx, token)
	require.NoError(suite.T(), err)

	_, err = suite.db.ValidateSession(suite.ctx, token)
	assert.ErrorIs(suite.T(), err, ErrNotFound, "expected not found after deleting session")
}

func (suite *SessionTestSuite) TestCleanExpiredSessions() {
	live, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)
	stale, err := auth.GenerateSessionToken()
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.db.CreateSession(suite.ctx, live, suite.user.ID, time.Now().Add(time.Hour)))
	require.NoError(suite.T(), suite.db.CreateSession(suite.ctx, stale, suite.user.ID, time.Now().Add(-time.Hour)))

	removed, err := suite.db.CleanExpiredSessions(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), removed)

	_, err = suite.db.ValidateSession(suite.ctx, live)
	assert.NoError(suite.T(), err)
}

func TestNewDBRejectsEmptyDSN(t *testing.T) {
	_, err := NewDB("")
	assert.Error(t, err)
}

func TestNewDBIsIdempotentOnFile(t *testing.T) {
	path := t.TempDir() + "/spendbook.db"

	db, err := NewDB(path)
	require.NoError(t, err)
	_, err = db.CreateUser(context.Background(), "Alice", "a@x.com", "hash")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening applies no migrations and keeps the data.
	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.UserCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// Test suite runners
func TestUserSuite(t *testing.T) {
	suite.Run(t, new(UserTestSuite))
}

func TestExpenseSuite(t *testing.T) {
	suite.Run(t, new(ExpenseTestSuite))
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
