package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTaskLines(t *testing.T) {
	withProducts := Task{
		Products:   []LineItem{{ProductRef: "A", UnitPrice: decimal.NewFromInt(500), Quantity: decimal.NewFromInt(2)}},
		ProductRef: "ignored",
	}
	require.Len(t, withProducts.Lines(), 1)
	require.Equal(t, "A", withProducts.Lines()[0].ProductRef)

	legacy := Task{ProductRef: "B", Price: decimal.NewFromInt(250), Quantity: decimal.NewFromInt(4), Waste: decimal.NewFromInt(1)}
	lines := legacy.Lines()
	require.Len(t, lines, 1)
	require.True(t, lines[0].Total().Equal(decimal.NewFromInt(1000)))
	require.True(t, lines[0].Consumed().Equal(decimal.NewFromInt(5)))

	require.Nil(t, Task{}.Lines())
}

func TestTaskIsCreditSettled(t *testing.T) {
	cases := []struct {
		name string
		task Task
		want bool
	}{
		{"empty", Task{}, false},
		{"last method credits", Task{LastPaymentMethod: MethodCredits}, true},
		{"latest history credits", Task{LastPaymentMethod: MethodCash, PaymentHistory: []PaymentEntry{{Method: MethodCash}, {Method: MethodCredits}}}, true},
		{"earlier history credits only", Task{PaymentHistory: []PaymentEntry{{Method: MethodCredits}, {Method: MethodCard}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.task.IsCreditSettled())
		})
	}
}

func TestStatusAndMethodPredicates(t *testing.T) {
	require.True(t, TaskCompleted.IsSettled())
	require.True(t, TaskTemporaryCompleted.IsSettled())
	require.False(t, TaskReturned.IsSettled())
	require.False(t, TaskStatus("Archived").IsValid())

	require.True(t, MethodCheque.HoldsSettlement())
	require.True(t, MethodCredits.HoldsSettlement())
	require.False(t, MethodOnline.HoldsSettlement())
	require.True(t, MethodOnline.IsDeferred())
	require.False(t, PaymentMethod("bitcoin").IsValid())

	require.False(t, ClearancePending.IsTerminal())
	require.True(t, ClearanceReturned.IsTerminal())
}

func TestIsIdentityKey(t *testing.T) {
	require.True(t, IsIdentityKey(NewID()))
	require.False(t, IsIdentityKey("PRINT-A4"))
	require.False(t, IsIdentityKey(""))
}
