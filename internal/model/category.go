package model

import "time"

// CategoryType indicates whether a category is for income, expense, or system use.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for income transactions.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for expense transactions.
	CategoryTypeExpense CategoryType = "expense"
	// CategoryTypeSystem represents system-managed categories (e.g., transfers).
	CategoryTypeSystem CategoryType = "system"
)

// OtherCategoryID is the well-known catch-all category.
const OtherCategoryID = "other"

// Category is one entry of the closed category taxonomy.
type Category struct {
	CreatedAt   time.Time
	ID          string
	Name        string
	Description string
	Type        CategoryType
	IsActive    bool
}

// DefaultCategories is the known category metadata used to create missing categories on demand.
func DefaultCategories() []Category {
	return []Category{
		{ID: "groceries", Name: "Groceries", Type: CategoryTypeExpense, Description: "Supermarkets and food shopping"},
		{ID: "dining", Name: "Dining Out", Type: CategoryTypeExpense, Description: "Restaurants, cafes, takeaway and delivery"},
		{ID: "transport", Name: "Transport", Type: CategoryTypeExpense, Description: "Public transit, taxis, ride hailing, parking"},
		{ID: "fuel", Name: "Fuel", Type: CategoryTypeExpense, Description: "Petrol stations and charging"},
		{ID: "travel", Name: "Travel", Type: CategoryTypeExpense, Description: "Flights, hotels and holiday bookings"},
		{ID: "shopping", Name: "Shopping", Type: CategoryTypeExpense, Description: "Retail, online marketplaces, clothing, electronics"},
		{ID: "utilities", Name: "Utilities", Type: CategoryTypeExpense, Description: "Electricity, gas, water, internet, phone"},
		{ID: "housing", Name: "Housing", Type: CategoryTypeExpense, Description: "Rent, mortgage, home maintenance"},
		{ID: "subscriptions", Name: "Subscriptions", Type: CategoryTypeExpense, Description: "Streaming, software and recurring memberships"},
		{ID: "health", Name: "Health", Type: CategoryTypeExpense, Description: "Pharmacy, doctors, insurance premiums"},
		{ID: "entertainment", Name: "Entertainment", Type: CategoryTypeExpense, Description: "Cinema, events, games, hobbies"},
		{ID: "fees", Name: "Bank Fees", Type: CategoryTypeExpense, Description: "Account, card and ATM fees"},
		{ID: "cash", Name: "Cash & ATM", Type: CategoryTypeExpense, Description: "Cash withdrawals"},
		{ID: "taxes", Name: "Taxes", Type: CategoryTypeExpense, Description: "Tax payments"},
		{ID: "income", Name: "Income", Type: CategoryTypeIncome, Description: "Salary, wages and other earnings"},
		{ID: "interest", Name: "Interest & Dividends", Type: CategoryTypeIncome, Description: "Interest, dividends and investment income"},
		{ID: "refunds", Name: "Refunds", Type: CategoryTypeIncome, Description: "Refunds, reimbursements and cashback"},
		{ID: "transfers", Name: "Transfers", Type: CategoryTypeSystem, Description: "Movements between own accounts and to other people"},
		{ID: OtherCategoryID, Name: "Other", Type: CategoryTypeSystem, Description: "Anything that does not fit elsewhere"},
	}
}

// CategoryIDs returns the IDs of the given categories.
func CategoryIDs(categories []Category) []string {
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	return ids
}
