package finance

// Intent labels what a message asks for
type Intent string

const (
	IntentBalanceInquiry     Intent = "balance_inquiry"
	IntentSpendingAnalysis   Intent = "spending_analysis"
	IntentIncomeAnalysis     Intent = "income_analysis"
	IntentCategoryBreakdown  Intent = "category_breakdown"
	IntentBudgetAdvice       Intent = "budget_advice"
	IntentTransactionHistory Intent = "transaction_history"
	IntentGeneralQuestion    Intent = "general_question"
	IntentUnknown            Intent = "unknown"
)

var intents = map[Intent]bool{
	IntentBalanceInquiry:     true,
	IntentSpendingAnalysis:   true,
	IntentIncomeAnalysis:     true,
	IntentCategoryBreakdown:  true,
	IntentBudgetAdvice:       true,
	IntentTransactionHistory: true,
	IntentGeneralQuestion:    true,
	IntentUnknown:            true,
}

// ParseIntent returns IntentUnknown for labels outside the closed set
func ParseIntent(s string) Intent {
	if intents[Intent(s)] {
		return Intent(s)
	}
	return IntentUnknown
}

// IntentLabels lists the labels, for prompts
func IntentLabels() []string {
	return []string{
		string(IntentBalanceInquiry), string(IntentSpendingAnalysis), string(IntentIncomeAnalysis),
		string(IntentCategoryBreakdown), string(IntentBudgetAdvice), string(IntentTransactionHistory),
		string(IntentGeneralQuestion), string(IntentUnknown),
	}
}

// IntentClassification routes a message; it is never persisted
type IntentClassification struct {
	IsFinancial bool   `json:"isFinancial"`
	Intent      Intent `json:"intent"`
}

// UnknownIntent is the classification used whenever classification fails
var UnknownIntent = IntentClassification{IsFinancial: false, Intent: IntentUnknown}
