package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerTabStyle     = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerEdgeStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
	bannerVersionStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// renderBanner draws a stack of folder tabs around the name.
func renderBanner() string {
	tab := bannerTabStyle.Render("╭──╮")
	edge := bannerEdgeStyle.Render
	title := bannerTitleStyle.Render("SETASIDE")

	lines := []string{
		"   " + tab + " " + tab + " " + tab,
		" " + edge("╭─┴──┴─┴──┴─┴──┴─╮"),
		" " + edge("│") + "    " + title + "    " + edge("│"),
		" " + edge("╰────────────────╯"),
	}
	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	tagline := bannerTaglineStyle.Render("   tabs, kept for later")
	ver := bannerVersionStyle.Render("   " + version)
	return strings.Join([]string{renderBanner(), tagline, ver}, "\n")
}
