package graphauth

// Counter names recorded by the Manager.
const (
	MetricFastPath      = "graph_token.fast_path"
	MetricRefreshed     = "graph_token.refreshed"
	MetricRefreshFailed = "graph_token.refresh_failed"
	MetricExchanged     = "graph_token.exchanged"
)
