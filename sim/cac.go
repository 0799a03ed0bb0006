package sim

// channelCAC computes spend / conversions for each marketing row. Channels
// with no conversions map to nil (undefined CAC).
func channelCAC(marketing []MarketingRecord) map[string]*float64 {
	out := make(map[string]*float64, len(marketing))
	for _, m := range marketing {
		if m.Conversions > 0 {
			cac := m.Spend / float64(m.Conversions)
			out[m.Channel] = &cac
		} else {
			out[m.Channel] = nil
		}
	}
	return out
}

// attributeCAC stamps the channel-day CAC onto every sales row of that
// channel. Rows get their own copy so no two records share a pointer.
func attributeCAC(sales []SalesRecord, marketing []MarketingRecord) {
	cacs := channelCAC(marketing)
	for i := range sales {
		v := cacs[sales[i].Channel]
		if v == nil {
			sales[i].CAC = nil
			continue
		}
		c := *v
		sales[i].CAC = &c
	}
}
