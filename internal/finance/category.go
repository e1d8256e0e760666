package finance

import "strings"

// Category is a closed set of ledger categories
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryGroceries     Category = "Groceries"
	CategoryTransport     Category = "Transport"
	CategoryHousing       Category = "Housing"
	CategoryUtilities     Category = "Utilities"
	CategoryHealth        Category = "Health"
	CategoryEntertainment Category = "Entertainment"
	CategoryShopping      Category = "Shopping"
	CategoryEducation     Category = "Education"
	CategoryTravel        Category = "Travel"
	CategoryBills         Category = "Bills"
	CategorySalary        Category = "Salary"
	CategoryInvestment    Category = "Investment"
	CategoryTransfer      Category = "Transfer"
	CategoryOther         Category = "Other"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryFood, CategoryGroceries, CategoryTransport, CategoryHousing,
	CategoryUtilities, CategoryHealth, CategoryEntertainment, CategoryShopping,
	CategoryEducation, CategoryTravel, CategoryBills, CategorySalary,
	CategoryInvestment, CategoryTransfer, CategoryOther,
}

var categoryAliases = map[string]Category{
	"dining":         CategoryFood,
	"restaurant":     CategoryFood,
	"restaurants":    CategoryFood,
	"grocery":        CategoryGroceries,
	"transportation": CategoryTransport,
	"rent":           CategoryHousing,
	"utility":        CategoryUtilities,
	"healthcare":     CategoryHealth,
	"medical":        CategoryHealth,
	"income":         CategorySalary,
	"wages":          CategorySalary,
	"investments":    CategoryInvestment,
	"transfers":      CategoryTransfer,
	"uncategorized":  CategoryOther,
}

// ParseCategory normalises a free-form label. Unknown labels are CategoryOther.
func ParseCategory(s string) Category {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return CategoryOther
	}
	for _, c := range Categories {
		if strings.ToLower(string(c)) == key {
			return c
		}
	}
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return CategoryOther
}

// CategoryNames returns the category labels, for prompts
func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return names
}
