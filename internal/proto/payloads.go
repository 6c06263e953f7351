package proto

// Entity payloads. Cross-entity references carry the originating device's
// local id rendered as a decimal string, plus the referent's server id when
// it was already bound at push time. Other devices resolve references by
// server id.

type ExpensePayload struct {
	Title  string `json:"title"`
	Amount int64  `json:"amount"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Date   int    `json:"date"`
}

type TagPayload struct {
	Name          string `json:"name"`
	MonthlyAmount int64  `json:"monthly_amount"`
	CurrentMonth  int    `json:"current_month"`
	CurrentYear   int    `json:"current_year"`
	CreatedDay    int    `json:"created_day"`
	CreatedMonth  int    `json:"created_month"`
	CreatedYear   int    `json:"created_year"`
}

type TargetPayload struct {
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	TagID       string `json:"tag_id"`
	TagServerID string `json:"tag_server_id,omitempty"`
	Amount      int64  `json:"amount"`
	Spent       int64  `json:"spent"`
}

type ExpenseTagPayload struct {
	ExpenseID       string `json:"expense_id"`
	ExpenseServerID string `json:"expense_server_id,omitempty"`
	TagID           string `json:"tag_id"`
	TagServerID     string `json:"tag_server_id,omitempty"`
}

type GraphEdgePayload struct {
	FromTagID    string `json:"from_tag_id"`
	FromServerID string `json:"from_server_id,omitempty"`
	ToTagID      string `json:"to_tag_id"`
	ToServerID   string `json:"to_server_id,omitempty"`
	Weight       int64  `json:"weight"`
}
