package prompts

// SubAspect is one entry of the standard sub-aspect vocabulary with the
// expressions that map onto it.
type SubAspect struct {
	Name  string
	Hints []string
}

type AspectGroup struct {
	Aspect     string
	SubAspects []SubAspect
}

// Vocabulary is the consolidated aspect taxonomy the model is asked to use.
var Vocabulary = []AspectGroup{
	{Aspect: "servicio", SubAspects: []SubAspect{
		{"personal", []string{"trato", "amabilidad", "atención", "el/la chico/a como sujeto", "mala onda"}},
		{"velocidad", []string{"rápido", "lento", "demora", "espera larga"}},
		{"profesionalismo", []string{"experiencia", "conocimiento de la carta", "capacitación"}},
	}},
	{Aspect: "comida", SubAspects: []SubAspect{
		{"sabor", []string{"rico", "sabroso", "insípido", "mal sabor"}},
		{"temperatura", []string{"frío", "caliente", "tibio"}},
		{"frescura", []string{"fresco", "pasado", "recalentado"}},
		{"presentacion", []string{"emplatado", "aspecto del plato"}},
		{"calidad", []string{"ingredientes", "materia prima", "calidad general"}},
		{"porciones", []string{"abundante", "escasa", "porción chica o grande"}},
	}},
	{Aspect: "ambiente", SubAspects: []SubAspect{
		{"ruido", []string{"ruidoso", "tranquilo", "música alta"}},
		{"iluminacion", []string{"oscuro", "luminoso", "luz tenue"}},
		{"decoracion", []string{"estilo", "deco", "lindo", "feo"}},
		{"limpieza", []string{"limpio", "sucio", "descuidado"}},
		{"espacio", []string{"amplio", "apretado", "local chico o grande"}},
	}},
	{Aspect: "precio", SubAspects: []SubAspect{
		{"valor", []string{"relación precio-calidad", "caro", "barato", "vale la pena"}},
	}},
}
