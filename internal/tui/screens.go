package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// renderStatusScreen renders the lease and tree status screen
func (m Model) renderStatusScreen() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#76b900")).MarginBottom(1)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)

	b.WriteString(titleStyle.Render("Presence Status"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Presence Lease"))
	b.WriteString("\n")
	b.WriteString(m.renderLeaseSection(labelStyle, valueStyle, errorStyle))

	b.WriteString(sectionStyle.Render("Device Tree"))
	b.WriteString("\n")
	b.WriteString(m.renderTreeSection(labelStyle, valueStyle, errorStyle))

	b.WriteString(sectionStyle.Render("Hardware Profile"))
	b.WriteString("\n")
	b.WriteString(m.renderProfileSection(labelStyle, valueStyle))

	if m.statusMessage != "" {
		b.WriteString("\n")
		b.WriteString(valueStyle.Render(m.statusMessage))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press 'r' to refresh, Esc to return to menu, 'q' to quit"))
	b.WriteString("\n")

	return b.String()
}

// renderLeaseSection renders the lease section
func (m Model) renderLeaseSection(labelStyle, valueStyle, errorStyle lipgloss.Style) string {
	if m.leaseErr != "" {
		return errorStyle.Render(m.leaseErr) + "\n"
	}

	if m.leaseInfo == nil {
		return valueStyle.Render("Not held") + "\n"
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render("Held by: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("pid %d on %s", m.leaseInfo.PID, m.leaseInfo.Hostname)))
	if m.leaseInfo.Stale(m.leaseTimeout()) {
		b.WriteString("  ")
		b.WriteString(errorStyle.Render("(stale)"))
	}
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Acquired: "))
	b.WriteString(valueStyle.Render(m.prettyDuration(m.leaseInfo.Age()) + " ago"))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render("Renewed: "))
	b.WriteString(valueStyle.Render(m.prettyDuration(time.Since(m.leaseInfo.RenewedTS)) + " ago"))
	b.WriteString("\n")

	return b.String()
}

// renderTreeSection renders the tree section
func (m Model) renderTreeSection(labelStyle, valueStyle, errorStyle lipgloss.Style) string {
	if m.treeErr != "" {
		return errorStyle.Render(m.treeErr) + "\n"
	}

	if !m.treeInfo.Published {
		return valueStyle.Render("Not published") + "\n"
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render("Root: "))
	b.WriteString(valueStyle.Render(m.treeInfo.Root))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Driver: "))
	b.WriteString(valueStyle.Render(m.treeInfo.DriverVersion))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render("GPUs: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", len(m.treeInfo.BusIDs))))
	b.WriteString("\n")

	return b.String()
}

// renderProfileSection renders the configured hardware profile
func (m Model) renderProfileSection(labelStyle, valueStyle lipgloss.Style) string {
	var b strings.Builder

	b.WriteString(labelStyle.Render("Devices: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d × %s (%d MiB)",
		m.profile.DeviceCount, m.profile.DeviceName, m.profile.MemoryBytes/(1024*1024))))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Driver: "))
	b.WriteString(valueStyle.Render(m.profile.DriverVersion))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render("CUDA: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.profile.CudaDriverVersion)))
	b.WriteString("\n")

	return b.String()
}

// renderDevicesScreen renders the emulated device registry
func (m Model) renderDevicesScreen() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#76b900")).MarginBottom(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)

	b.WriteString(titleStyle.Render("Emulated Devices"))
	b.WriteString("\n\n")

	if !m.hasReport || !m.report.LibraryOk {
		b.WriteString(errorStyle.Render("Device probe failed: " + m.report.ErrorMessage))
		b.WriteString("\n")
	} else {
		b.WriteString(labelStyle.Render("Driver: "))
		b.WriteString(valueStyle.Render(m.report.DriverVersion))
		b.WriteString("  ")
		b.WriteString(labelStyle.Render("NVML: "))
		b.WriteString(valueStyle.Render(m.report.NVMLVersion))
		b.WriteString("  ")
		b.WriteString(labelStyle.Render("CUDA: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.report.CUDAVersion)))
		b.WriteString("\n\n")

		for _, dev := range m.report.Devices {
			b.WriteString(valueStyle.Render(fmt.Sprintf("  [%d] %s (%d MiB)", dev.Index, dev.Name, dev.MemoryMiB)))
			b.WriteString("\n")
			b.WriteString(labelStyle.Render(fmt.Sprintf("      %s  %s  minor %d  cc %s",
				dev.UUID, dev.BusID, dev.Minor, dev.ComputeCapability)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press 'r' to refresh, Esc to return to menu, 'q' to quit"))
	b.WriteString("\n")

	return b.String()
}

// renderTreeScreen renders the published device tree
func (m Model) renderTreeScreen() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#76b900")).MarginBottom(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)

	b.WriteString(titleStyle.Render("Device Tree"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Root: "))
	b.WriteString(valueStyle.Render(m.cfg.Tree.Root))
	b.WriteString("\n")

	switch {
	case m.treeErr != "":
		b.WriteString(errorStyle.Render(m.treeErr))
		b.WriteString("\n")
	case !m.treeInfo.Published:
		b.WriteString(valueStyle.Render("Not published (run 'fakegpu up' to publish)"))
		b.WriteString("\n")
	default:
		b.WriteString(labelStyle.Render("Driver Version: "))
		b.WriteString(valueStyle.Render(m.treeInfo.DriverVersion))
		b.WriteString("\n\n")
		for _, busID := range m.treeInfo.BusIDs {
			b.WriteString(valueStyle.Render("  • gpus/" + busID))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press 'r' to refresh, Esc to return to menu, 'q' to quit"))
	b.WriteString("\n")

	return b.String()
}

// renderTraceScreen renders recent shim calls
func (m Model) renderTraceScreen() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#76b900")).MarginBottom(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)

	b.WriteString(titleStyle.Render(fmt.Sprintf("Shim Trace (last %d)", traceDisplayCount)))
	b.WriteString("\n\n")

	switch {
	case m.traceErr != "":
		b.WriteString(errorStyle.Render(m.traceErr))
		b.WriteString("\n")
	case len(m.traceRecords) == 0:
		b.WriteString(valueStyle.Render("No shim calls recorded yet"))
		b.WriteString("\n")
	default:
		for _, rec := range m.traceRecords {
			b.WriteString(labelStyle.Render(rec.Timestamp.Format("15:04:05") + "  "))
			b.WriteString(valueStyle.Render(fmt.Sprintf("%-32s %s", rec.Op, rec.Msg)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press 'r' to refresh, Esc to return to menu, 'q' to quit"))
	b.WriteString("\n")

	return b.String()
}

// renderDiagnosticsScreen renders the support bundle screen
func (m Model) renderDiagnosticsScreen() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#76b900")).MarginBottom(1)
	textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).MarginTop(1)
	resultStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af")).MarginTop(1)
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(2)

	b.WriteString(titleStyle.Render("Diagnostics"))
	b.WriteString("\n\n")
	b.WriteString(textStyle.Render("Create a support bundle with the redacted config, state files,"))
	b.WriteString("\n")
	b.WriteString(textStyle.Render("published tree, shim trace tail and a live device probe."))
	b.WriteString("\n")

	if m.diagResult != "" {
		b.WriteString(resultStyle.Render(m.diagResult))
		b.WriteString("\n")
	}

	b.WriteString(hintStyle.Render("Press 'g' to generate a bundle, Esc to return to menu, 'q' to quit"))
	b.WriteString("\n")

	return b.String()
}
