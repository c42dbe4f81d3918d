package stacktester

// DebugState describes the machine for inspection after a run stops.
// Pending items that are not ready are reported without waiting.
func (m *Machine) DebugState() map[string]any {
	items := m.stack.Items()
	stack := make([]map[string]any, 0, len(items))
	for position, item := range items {
		entry := map[string]any{
			"position": position,
			"index":    item.Index(),
		}
		if res, ok := item.TryResolve(); ok {
			entry["value"] = res.Value
			if res.Err != nil {
				entry["error"] = res.Err
			}
		} else {
			entry["pending"] = true
		}
		stack = append(stack, entry)
	}
	return map[string]any{
		"prefix":       m.prefix,
		"transaction":  m.registry.CurrentName(),
		"last_version": m.lastVersion,
		"stack":        stack,
	}
}
