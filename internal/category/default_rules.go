package category

// DefaultRules returns the keyword rules for Colombian grocery products.
// Patterns are matched against the accent-free, lower-case product name.
func DefaultRules() []Rule {
	return []Rule{
		// Specific products first: "leche" also appears in soap and candy names.
		{
			Category: "Aseo",
			Regex:    `\b(detergente|jabon\s*(rey|polvo|barra|ropa|loza)|suavizante|cloro|blanqueador|limpiador|lavaloza|axion|fab|ariel|desinfectante|ambientador|esponja|trapero|escoba)\b`,
			Priority: 100,
		},
		{
			Category: "Cuidado Personal",
			Regex:    `\b(shampoo|champu|acondicionador|crema\s*dental|cepillo\s*dental|desodorante|jabon\s*(liquido|tocador|intimo)|toallas?\s*higienicas?|protectores?|papel\s*higienico|panales?|afeitar|colgate|gillette)\b`,
			Priority: 95,
		},
		{
			Category: "Mascotas",
			Regex:    `\b(dog\s*chow|cat\s*chow|purina|pedigree|whiskas|concentrado\s*(perro|gato)|arena\s*gato|mascota)\b`,
			Priority: 90,
		},
		{
			Category: "Congelados",
			Regex:    `\b(congelad[oa]s?|helado|paleta|nuggets|apanado|pre\s*frit[oa]s?|papas\s*a\s*la\s*francesa)\b`,
			Priority: 85,
		},
		{
			Category: "Lácteos",
			Regex:    `\b(leche|queso|quesito|yogur|yogurt|kumis|kumiss|mantequilla|crema\s*de\s*leche|arequipe|alpina|alqueria|colanta|cuajada|suero)\b`,
			Priority: 80,
		},
		{
			Category: "Carnes",
			Regex:    `\b(carne|res|cerdo|pollo|pechuga|muslos?|alas|chorizo|salchicha|salchichon|jamon|tocineta|mortadela|pescado|tilapia|atun|sardinas?|costilla|molida|huevos?)\b`,
			Priority: 75,
		},
		{
			Category: "Frutas y Verduras",
			Regex:    `\b(banano|platano|manzana|pera|naranja|mandarina|limon|mango|papaya|pina|fresa|mora|uva|aguacate|tomate|cebolla|papa|yuca|zanahoria|lechuga|repollo|pimenton|cilantro|ajo|arveja|habichuela|ahuyama)\b`,
			Priority: 70,
		},
		{
			Category: "Panadería",
			Regex:    `\b(pan|tajado|mogolla|croissant|ponque|bimbo|tostadas?|galletas?|arepas?|almojabana|bunuelo)\b`,
			Priority: 65,
		},
		{
			Category: "Bebidas",
			Regex:    `\b(gaseosa|cola|postobon|coca|agua|jugo|hit|te|cafe|tinto|cerveza|aguila|poker|club\s*colombia|energizante|malta|refresco|sello\s*rojo)\b`,
			Priority: 60,
		},
		{
			Category: "Granos",
			Regex:    `\b(arroz|frijol|frijoles|lenteja|lentejas|garbanzo|maiz|avena|harina|pasta|spaghetti|espagueti|azucar|panela|sal|aceite)\b`,
			Priority: 55,
		},
		{
			Category: "Snacks",
			Regex:    `\b(papas?\s*fritas|margarita|de\s*todito|chitos?|doritos|chocolatina|chocolate|jet|dulces?|chicles?|mani|snack|bocadillo|gomas)\b`,
			Priority: 50,
		},
		{
			Category: "Hogar",
			Regex:    `\b(servilletas?|toallas?\s*de\s*cocina|bolsas?\s*(basura|resellables)|aluminio|vinipel|velas?|fosforos|pilas?|bombillo|vasos|platos|cubiertos)\b`,
			Priority: 45,
		},
	}
}
