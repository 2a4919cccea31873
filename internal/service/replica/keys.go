package replica

import "fmt"

func buildPropsKey(tableID int64) string {
	return fmt.Sprintf("table:%d:props", tableID)
}

func buildEventsChannel(tableID int64) string {
	return fmt.Sprintf("table:%d:events", tableID)
}

func buildLeaseKey(tableID int64) string {
	return fmt.Sprintf("table:%d:authority", tableID)
}
