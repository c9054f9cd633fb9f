package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOrderBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book" || r.URL.Query().Get("token_id") != "111" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"market":"0xabc","asset_id":"111","timestamp":"1765300500123",
			"bids":[{"price":"0.48","size":"100"},{"price":"x","size":"1"}],
			"asks":[{"price":"0.52","size":"50"},{"price":"0.51","size":"20"}]}`))
	}))
	defer server.Close()

	client := NewBookClient(server.URL, nil)
	book, err := client.OrderBook(context.Background(), "111")
	if err != nil {
		t.Fatalf("OrderBook: %v", err)
	}
	if book.AssetID != "111" || len(book.Bids) != 1 || len(book.Asks) != 2 {
		t.Fatalf("unexpected book %+v", book)
	}
	if book.Asks[1].Price != 0.51 || book.Bids[0].Size != 100 {
		t.Fatalf("unexpected levels %+v", book)
	}
	if book.Ts.UnixMilli() != 1765300500123 {
		t.Fatalf("unexpected timestamp %s", book.Ts)
	}

	if _, err := client.OrderBook(context.Background(), "999"); err == nil {
		t.Fatalf("expected error for unknown token")
	}
}
