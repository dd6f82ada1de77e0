package classification

// DefaultPatterns returns the built-in description rules.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Income patterns - highest priority
		{
			Name:       "Direct Deposit",
			Type:       PatternTypeIncome,
			CategoryID: "income",
			Regex:      `\b(DIRECTDEP|DIRECT\s*DEP|DIR\s*DEP|PAYROLL|SALARY|WAGES|GEHALT|LOHN|SALAIRE|STIPENDIO|NOMINA)\b`,
			Priority:   100,
			Confidence: 0.95,
		},
		{
			Name:       "Tax Refund",
			Type:       PatternTypeIncome,
			CategoryID: "taxes",
			Regex:      `\b(TAX\s*REF|IRS\s*TREAS|STATE\s*TAX\s*REF|FED\s*TAX\s*REF|HMRC\s*REFUND)\b`,
			Priority:   96,
			Confidence: 0.95,
		},
		{
			Name:       "Interest Income",
			Type:       PatternTypeIncome,
			CategoryID: "interest",
			Regex:      `\b(INTEREST|INT\s*EARNED|INT\s*INCOME|DIVIDEND|ZINSEN|INTERETS|INTERESSI)\b`,
			Priority:   95,
			Confidence: 0.90,
		},
		{
			Name:       "Social Security",
			Type:       PatternTypeIncome,
			CategoryID: "income",
			Regex:      `\b(SOC\s*SEC|SOCIAL\s*SECURITY|SSA\s*TREAS)\b`,
			Priority:   95,
			Confidence: 0.95,
		},
		{
			Name:       "Pension",
			Type:       PatternTypeIncome,
			CategoryID: "income",
			Regex:      `\b(PENSION|RETIREMENT\s*INCOME|ANNUITY|RENTE)\b`,
			Priority:   90,
			Confidence: 0.90,
		},
		{
			Name:       "Refund",
			Type:       PatternTypeIncome,
			CategoryID: "refunds",
			Regex:      `\b(REFUND|REIMB|REIMBURSEMENT|CASHBACK|CASH\s*BACK|RETURN\s*CREDIT|ERSTATTUNG|REMBOURSEMENT|RIMBORSO|REEMBOLSO)\b`,
			Priority:   90,
			Confidence: 0.85,
		},
		{
			Name:       "Bonus",
			Type:       PatternTypeIncome,
			CategoryID: "income",
			Regex:      `\b(BONUS|COMMISSION|PERFORMANCE\s*PAY)\b`,
			Priority:   85,
			Confidence: 0.85,
		},

		// Transfer patterns
		{
			Name:       "Wire Transfer",
			Type:       PatternTypeTransfer,
			CategoryID: "transfers",
			Regex:      `\b(WIRE\s*IN|WIRE\s*OUT|WIRE\s*TRANSFER|WIRE\s*XFER)\b`,
			Priority:   85,
			Confidence: 0.90,
		},
		{
			Name:       "Account Transfer",
			Type:       PatternTypeTransfer,
			CategoryID: "transfers",
			Regex:      `\b(TRANSFER|XFER|TFR|MOVE\s*MONEY|ACCOUNT\s*TO\s*ACCOUNT|UBERWEISUNG|UEBERWEISUNG|VIREMENT|BONIFICO|TRANSFERENCIA)\b`,
			Priority:   80,
			Confidence: 0.85,
		},
		{
			Name:       "Savings Transfer",
			Type:       PatternTypeTransfer,
			CategoryID: "transfers",
			Regex:      `\b(TO\s*SAVINGS|FROM\s*SAVINGS|SAVINGS\s*TRANSFER)\b`,
			Priority:   75,
			Confidence: 0.80,
		},
		{
			Name:       "Credit Card Payment",
			Type:       PatternTypeTransfer,
			CategoryID: "transfers",
			Regex:      `\b(CC\s*PAYMENT|CREDIT\s*CARD\s*PAY|PAYMENT\s*THANK\s*YOU|AUTOPAY\s*PAYMENT)\b`,
			Priority:   75,
			Confidence: 0.80,
		},
		{
			Name:       "Mortgage",
			Type:       PatternTypeExpense,
			CategoryID: "housing",
			Regex:      `\b(MORTGAGE|RENT\s*PAYMENT|MIETE|LOYER|AFFITTO|ALQUILER)\b`,
			Priority:   70,
			Confidence: 0.85,
		},

		// Common expense patterns (lower priority)
		{
			Name:       "ATM Withdrawal",
			Type:       PatternTypeExpense,
			CategoryID: "cash",
			Regex:      `\b(ATM|CASH\s*WITHDRAWAL|WITHDRAW|GELDAUTOMAT|BARGELD|RETRAIT\s*DAB|PRELIEVO)\b`,
			Priority:   50,
			Confidence: 0.80,
		},
		{
			Name:       "Fee",
			Type:       PatternTypeExpense,
			CategoryID: "fees",
			Regex:      `\b(FEE|SERVICE\s*CHG|OVERDRAFT|PENALTY|GEBUHR|GEBUEHR|FRAIS|COMMISSIONE)\b`,
			Priority:   45,
			Confidence: 0.75,
		},
		{
			Name:       "Utility Bill",
			Type:       PatternTypeExpense,
			CategoryID: "utilities",
			Regex:      `\b(ELECTRIC|ELECTRICITY|WATER\s*BILL|GAS\s*BILL|STROM|INTERNET|BROADBAND)\b`,
			Priority:   45,
			Confidence: 0.75,
		},
		{
			Name:       "Subscription",
			Type:       PatternTypeExpense,
			CategoryID: "subscriptions",
			Regex:      `\b(SUBSCRIPTION|MEMBERSHIP|ABO|ABONNEMENT)\b`,
			Priority:   40,
			Confidence: 0.70,
		},
	}
}
