package marketplace

import (
	"fmt"
	"strings"

	"github.com/coreybb/xianyu-autodeliver/models"
)

const (
	orderListSelector  = ".trade-order-list"
	orderItemSelector  = ".trade-order-item"
	loggedInSelector   = ".avatar-wrapper"
	deliveryDialog     = ".delivery-dialog"
	deliveryNoteInput  = `textarea[placeholder*="填写发货说明"]`
	orderIDLabelPrefix = "订单号："
)

// scrapeOrdersJS collects id, title and buyer of every pending order row.
const scrapeOrdersJS = `Array.from(document.querySelectorAll('.trade-order-item')).map(function (item) {
	function text(sel) {
		var el = item.querySelector(sel);
		return el ? el.innerText : '';
	}
	return {
		id: text('.trade-order-id'),
		title: text('.trade-order-item-info-title'),
		buyer: text('.trade-order-buyer-nick')
	};
})`

// scrapedOrder is one row as returned by scrapeOrdersJS.
type scrapedOrder struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Buyer string `json:"buyer"`
}

// parseScrapedOrders normalizes raw rows into orders, dropping rows without an id
// and duplicates of an id already seen on the page.
func parseScrapedOrders(rows []scrapedOrder) []models.Order {
	orders := make([]models.Order, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		id := normalizeOrderID(row.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		orders = append(orders, models.Order{
			ID:      id,
			Title:   strings.TrimSpace(row.Title),
			BuyerID: strings.TrimSpace(row.Buyer),
		})
	}
	return orders
}

func normalizeOrderID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimPrefix(id, orderIDLabelPrefix)
	id = strings.TrimPrefix(id, "订单号:")
	return strings.TrimSpace(id)
}

// validateOrderID admits plain alphanumeric ids, which keeps them safe to embed
// in XPath expressions.
func validateOrderID(orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidOrder)
	}
	for _, r := range orderID {
		if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'Z') && !(r >= 'a' && r <= 'z') && r != '-' {
			return fmt.Errorf("%w: %q", ErrInvalidOrder, orderID)
		}
	}
	return nil
}

// orderItemXPath selects the order row whose id label, with the "订单号："
// prefix stripped, equals orderID. Row "1234" must not match order "123".
func orderItemXPath(orderID string) string {
	return fmt.Sprintf(`//*[contains(concat(' ', normalize-space(@class), ' '), ' trade-order-item ')]`+
		`[.//*[contains(@class, 'trade-order-id') and normalize-space(translate(., '订单号：:', ''))='%s']]`, orderID)
}

func deliverButtonXPath(orderID string) string {
	return orderItemXPath(orderID) + `//button[contains(., '发货') or contains(., '填写运单')]`
}

const (
	noLogisticsButtonXPath  = `//button[contains(., '无需物流')]`
	confirmDeliveryXPath    = `//button[contains(., '确定发货')]`
	finalConfirmButtonXPath = `//button[contains(., '确定') or contains(., '确认')]`
)

// isLoginURL reports whether the browser was bounced to a login page.
func isLoginURL(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "login.taobao.com") ||
		strings.Contains(lower, "login.htm") ||
		strings.Contains(lower, "/member/login")
}
