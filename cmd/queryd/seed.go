package main

import "github.com/kestrelworks/queryd/internal/knowledge"

// seedDocuments is the starter corpus loaded into an empty knowledge
// store on first boot. Operators replace it by seeding their own
// documents into the configured chromem path.
var seedDocuments = []knowledge.Document{
	{
		ID:      "geo-paris",
		Title:   "Paris",
		Content: "Paris is the capital and largest city of France, situated on the Seine in the north of the country.",
	},
	{
		ID:      "geo-tokyo",
		Title:   "Tokyo",
		Content: "Tokyo is the capital of Japan and one of the most populous metropolitan areas in the world.",
	},
	{
		ID:      "sci-sky",
		Title:   "Rayleigh scattering",
		Content: "The sky appears blue because shorter blue wavelengths of sunlight scatter more strongly in the atmosphere than longer red wavelengths.",
	},
	{
		ID:      "sci-photosynthesis",
		Title:   "Photosynthesis",
		Content: "Photosynthesis is the process by which plants convert light energy, water and carbon dioxide into glucose and oxygen.",
	},
	{
		ID:      "sci-vaccines",
		Title:   "Vaccines",
		Content: "Vaccines train the immune system by exposing it to a harmless form of a pathogen so it can recognize and fight the real one.",
	},
	{
		ID:      "energy-renewables",
		Title:   "Renewable energy costs",
		Content: "Renewable energy sources such as wind and solar have lower long-term operating costs than fossil fuels but require higher upfront investment.",
	},
	{
		ID:      "energy-fossil",
		Title:   "Fossil fuels",
		Content: "Fossil fuels remain widely used for electricity generation and transport, but their prices are volatile and they emit greenhouse gases.",
	},
	{
		ID:      "hist-internet",
		Title:   "History of the internet",
		Content: "The internet grew out of ARPANET research in the late 1960s and was opened to commercial traffic in the early 1990s.",
	},
}
