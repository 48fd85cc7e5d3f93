package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	applog "spendbook/internal/log"
	"spendbook/internal/models"
	"spendbook/internal/storage"
)

// RecentLimit is the number of expenses shown on the dashboard.
const RecentLimit = 5

// NoTransactionsLabel replaces the earliest date when there are no expenses.
const NoTransactionsLabel = "NO transactions"

// CategoryDef defines the properties of a category.
type CategoryDef struct {
	ID    string
	Name  string
	Icon  string
	Color string
}

var categories = []CategoryDef{
	{"food", "Food", "🍽️", "#60a5fa"},
	{"transport", "Transport", "🚌", "#a78bfa"},
	{"entertainment", "Entertainment", "🎮", "#f472b6"},
	{"utilities", "Utilities", "💡", "#fbbf24"},
	{"housing", "Housing", "🏠", "#818cf8"},
	{"gifts", "Gifts", "🎁", "#fb7185"},
	{"other", "Other", "📦", "#94a3b8"},
}

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Icon  string
	Color string
}

func getCategoryStyle(category string) CategoryStyle {
	catLower := strings.ToLower(category)
	for _, c := range categories {
		if c.ID == catLower {
			return CategoryStyle{Icon: c.Icon, Color: c.Color}
		}
	}
	return CategoryStyle{Icon: "📦", Color: "#94a3b8"}
}

// ExpenseItem represents an expense in a list view.
type ExpenseItem struct {
	models.Expense
	Time          string
	CategoryStyle CategoryStyle
}

func newExpenseItem(e models.Expense) ExpenseItem {
	return ExpenseItem{
		Expense:       e,
		Time:          e.Date.Local().Format("15:04"),
		CategoryStyle: getCategoryStyle(e.Category),
	}
}

// ExpenseGroup groups expenses by day.
type ExpenseGroup struct {
	Title string
	Date  string
	Total float64
	Items []ExpenseItem
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Name           string
	RecentExpenses []ExpenseItem
}

// AllExpensesViewModel is the data passed to the full list template.
type AllExpensesViewModel struct {
	FormattedDate string
	Total         float64
	Count         int
	Groups        []ExpenseGroup
}

// FormViewModel is the data passed to the new-expense form template.
type FormViewModel struct {
	Flash      string
	Now        string
	Categories []CategoryDef
}

// FormatDisplayDate renders a date the way the expense pages show it.
func FormatDisplayDate(t time.Time) string {
	return t.Local().Format("1/2/2006")
}

// Dashboard renders the caller's name and most recent expenses.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	expenses, err := h.db.ListRecentExpenses(r.Context(), user.ID, RecentLimit)
	if err != nil {
		applog.FromContext(r.Context()).Error("list recent expenses", applog.Err(err))
		http.Error(w, "Error fetching expenses", http.StatusInternalServerError)
		return
	}

	items := make([]ExpenseItem, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, newExpenseItem(e))
	}

	h.render(w, r, "index.html", DashboardViewModel{Name: user.Name, RecentExpenses: items})
}

// NewExpenseForm renders the form to create a new expense.
func (h *Handlers) NewExpenseForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "new.html", FormViewModel{
		Flash:      h.cookies.PopFlash(w, r),
		Now:        time.Now().Format("2006-01-02T15:04"),
		Categories: categories,
	})
}

// AllExpenses renders every expense of the caller grouped by day, with the
// date of the earliest one.
func (h *Handlers) AllExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	logger := applog.FromContext(r.Context())

	expenses, err := h.db.ListExpenses(r.Context(), user.ID)
	if err != nil {
		logger.Error("list expenses", applog.Err(err))
		http.Error(w, "Error fetching expenses", http.StatusInternalServerError)
		return
	}

	formattedDate := NoTransactionsLabel
	start, err := h.db.EarliestExpense(r.Context(), user.ID)
	switch {
	case err == nil:
		formattedDate = FormatDisplayDate(start.Date)
	case !errors.Is(err, storage.ErrNotFound):
		logger.Error("earliest expense", applog.Err(err))
		http.Error(w, "Error fetching expenses", http.StatusInternalServerError)
		return
	}

	groups, total := groupByDay(expenses)
	h.render(w, r, "all.html", AllExpensesViewModel{
		FormattedDate: formattedDate,
		Total:         total,
		Count:         len(expenses),
		Groups:        groups,
	})
}

// groupByDay folds expenses, already newest first, into per-day groups in
// the same order.
func groupByDay(expenses []models.Expense) ([]ExpenseGroup, float64) {
	var groups []ExpenseGroup
	var total float64

	for _, e := range expenses {
		local := e.Date.Local()
		dateStr := local.Format("2006-01-02")
		if len(groups) == 0 || groups[len(groups)-1].Date != dateStr {
			groups = append(groups, ExpenseGroup{Date: dateStr, Title: formatGroupTitle(local)})
		}
		group := &groups[len(groups)-1]
		group.Total += e.Amount
		group.Items = append(group.Items, newExpenseItem(e))
		total += e.Amount
	}
	return groups, total
}

// CreateExpense saves an expense owned by the caller.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	logger := applog.FromContext(r.Context())

	amount, desc, cat, date, err := parseExpenseForm(r)
	if err != nil {
		logger.Warn("invalid expense form", applog.Err(err))
		h.flash(w, r, err.Error())
		http.Redirect(w, r, "/expenses/new", http.StatusFound)
		return
	}

	if _, err := h.db.CreateExpense(r.Context(), user.ID, amount, desc, cat, date); err != nil {
		logger.Error("create expense", applog.Err(err))
		h.flash(w, r, msgTryAgain)
		http.Redirect(w, r, "/expenses/new", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// DeleteExpense removes one of the caller's expenses.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Expense not found", http.StatusNotFound)
		return
	}

	err = h.db.DeleteExpense(r.Context(), user.ID, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Expense not found", http.StatusNotFound)
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).Error("delete expense", "expense_id", id, applog.Err(err))
		http.Error(w, "Server request failed, Error Deleting", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Deleted Successfully"))
}

var dateLayouts = []string{"2006-01-02T15:04", "2006-01-02"}

func parseExpenseForm(r *http.Request) (amount float64, desc, category string, date time.Time, err error) {
	if err := r.ParseForm(); err != nil {
		return 0, "", "", time.Time{}, errors.New("invalid form submission")
	}

	desc = strings.TrimSpace(r.FormValue("description"))
	if desc == "" {
		return 0, "", "", time.Time{}, errors.New("description is required")
	}

	amount, err = strconv.ParseFloat(strings.TrimSpace(r.FormValue("amount")), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, "", "", time.Time{}, errors.New("amount must be a number")
	}

	category = strings.TrimSpace(r.FormValue("category"))

	if dateStr := strings.TrimSpace(r.FormValue("date")); dateStr != "" {
		for _, layout := range dateLayouts {
			if date, err = time.ParseInLocation(layout, dateStr, time.Local); err == nil {
				break
			}
		}
		if err != nil {
			return 0, "", "", time.Time{}, errors.New("date is invalid")
		}
	}
	return amount, desc, category, date, nil
}

func formatGroupTitle(date time.Time) string {
	dateStr := date.Format("2006-01-02")
	nowStr := time.Now().Format("2006-01-02")

	if dateStr == nowStr {
		return "TODAY"
	}
	yesterdayStr := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	if dateStr == yesterdayStr {
		return "YESTERDAY"
	}
	return strings.ToUpper(date.Format("Mon, 02 Jan '06"))
}
