package model

// All lists every entity for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Dataset{},
		&DatasetVersion{},
		&RiskAssessment{},
		&RiskRecord{},
		&XAIExplanation{},
		&Conversation{},
		&Message{},
	}
}
