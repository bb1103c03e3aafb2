package vendetta

// Production curves of the standard rooms.
const (
	formulaWeapons  = "int(10 * ((Level + 1) / 2) ** 2)"
	formulaAmmo     = "int(20 * ((Level + 1) / 2) ** 2 + 20)"
	formulaBrewery  = "((1 + int(Level / 2)) * int(Level / 2) + (int(Level / 2) + 1) * (Level % 2)) * 50 + ((Level + 1) % 2) * 10"
	formulaTavern   = "int(2 * ((Level + 1) / 2) ** 2)"
	formulaSmuggler = "int(21 * ((Level + 1) / 2) ** 2)"
)

func res(armas, municion, dolares int64) Resources {
	return Resources{Armas: armas, Municion: municion, Dolares: dolares}
}

func needRoom(id string, level int) Requirement {
	return Requirement{Kind: RequireRoom, ID: id, Level: level}
}

func needTraining(id string, level int) Requirement {
	return Requirement{Kind: RequireTraining, ID: id, Level: level}
}

func defaultRooms() []RoomConfig {
	return []RoomConfig{
		{ID: RoomBossOffice, Name: "Oficina del Jefe", Cost: res(200, 100, 500), Duration: 600, Points: 10},
		{ID: RoomSchool, Name: "Escuela de especialización", Cost: res(500, 300, 1000), Duration: 900, Points: 8,
			Requirements: []Requirement{needRoom(RoomBossOffice, 2)}},
		{ID: "armeria", Name: "Armería", Cost: res(60, 30, 40), Duration: 300, Points: 2, Produces: Armas, ProductionFormula: formulaWeapons},
		{ID: "almacen_de_municion", Name: "Almacén de munición", Cost: res(50, 40, 40), Duration: 300, Points: 2, Produces: Municion, ProductionFormula: formulaAmmo},
		{ID: "cerveceria", Name: "Cervecería", Cost: res(80, 60, 60), Duration: 360, Points: 2, Produces: Alcohol, ProductionFormula: formulaBrewery},
		{ID: "taberna", Name: "Taberna", Cost: res(100, 80, 150), Duration: 420, Points: 3, Produces: Dolares, ProductionFormula: formulaTavern,
			AlcoholPerUnit: 7, AlcoholBase: 3, FeedPriority: 1, Requirements: []Requirement{needRoom("cerveceria", 1)}},
		{ID: "contrabando", Name: "Contrabando", Cost: res(300, 250, 400), Duration: 900, Points: 5, Produces: Dolares, ProductionFormula: formulaSmuggler,
			AlcoholPerUnit: 4, AlcoholBase: 1, FeedPriority: 2, Requirements: []Requirement{needRoom("taberna", 3)}},
		{ID: RoomWeaponsStore, Name: "Almacén de armas", Cost: res(200, 100, 100), Duration: 600, Points: 2, Stores: Armas},
		{ID: RoomAmmoStore, Name: "Depósito de munición", Cost: res(100, 200, 100), Duration: 600, Points: 2, Stores: Municion},
		{ID: RoomAlcoholStore, Name: "Almacén de alcohol", Cost: res(150, 150, 100), Duration: 600, Points: 2, Stores: Alcohol},
		{ID: RoomSafe, Name: "Caja fuerte", Cost: res(300, 300, 300), Duration: 900, Points: 3, Stores: Dolares},
		{ID: RoomTrainingYard, Name: "Campo de entrenamiento", Cost: res(400, 300, 500), Duration: 900, Points: 6,
			Requirements: []Requirement{needRoom(RoomBossOffice, 1)}},
		{ID: RoomSecurity, Name: "Seguridad", Cost: res(400, 400, 400), Duration: 900, Points: 6, DefenseBonus: 0.02,
			Requirements: []Requirement{needRoom(RoomBossOffice, 3)}},
		{ID: RoomTurret, Name: "Torreta de fuego automático", Cost: res(1500, 2000, 1000), Duration: 1800, Points: 12, DefenseBonus: 0.05,
			Requirements: []Requirement{needRoom(RoomSecurity, 3), needTraining("armas", 2)}},
		{ID: RoomHiddenMines, Name: "Minas ocultas", Cost: res(1000, 2500, 1500), Duration: 1800, Points: 12, DefenseBonus: 0.03,
			Requirements: []Requirement{needRoom(RoomSecurity, 5), needTraining("explosivos", 1)}},
	}
}

func defaultTrainings() []TrainingConfig {
	school := func(level int) []Requirement { return []Requirement{needRoom(RoomSchool, level)} }
	return []TrainingConfig{
		{ID: TrainingRoutes, Name: "Rutas", Cost: res(200, 200, 400), Duration: 1200, Points: 4, Requirements: school(1)},
		{ID: TrainingErrands, Name: "Encargos", Cost: res(200, 200, 400), Duration: 1200, Points: 4, Requirements: school(1)},
		{ID: "extorsion", Name: "Extorsión", Cost: res(300, 200, 600), Duration: 1500, Points: 4, Requirements: school(2)},
		{ID: "administracion", Name: "Administración", Cost: res(100, 100, 800), Duration: 1500, Points: 4, Requirements: school(1)},
		{ID: TrainingSmuggling, Name: "Contrabando", Cost: res(400, 300, 800), Duration: 1800, Points: 5, Requirements: school(2)},
		{ID: "espionaje", Name: "Espionaje", Cost: res(300, 300, 600), Duration: 1500, Points: 4, Requirements: school(2)},
		{ID: "seguridad", Name: "Seguridad", Cost: res(400, 400, 400), Duration: 1500, Points: 4, Requirements: school(2)},
		{ID: "proteccion", Name: "Protección", Cost: res(500, 500, 500), Duration: 1800, Points: 5, Requirements: school(3)},
		{ID: "combate", Name: "Combate cuerpo a cuerpo", Cost: res(600, 300, 400), Duration: 1800, Points: 5, Requirements: school(2)},
		{ID: "armas", Name: "Armas", Cost: res(800, 400, 400), Duration: 1800, Points: 5, Requirements: school(3)},
		{ID: "tiro", Name: "Tiro", Cost: res(500, 800, 400), Duration: 1800, Points: 5,
			Requirements: []Requirement{needRoom(RoomSchool, 3), needTraining("armas", 1)}},
		{ID: "explosivos", Name: "Explosivos", Cost: res(700, 1200, 600), Duration: 2400, Points: 6,
			Requirements: []Requirement{needRoom(RoomSchool, 4), needTraining("tiro", 2)}},
		{ID: "guerrilla", Name: "Guerrilla", Cost: res(900, 900, 900), Duration: 2400, Points: 6,
			Requirements: []Requirement{needRoom(RoomSchool, 5), needTraining("combate", 3)}},
		{ID: "psicologico", Name: "Entrenamiento psicológico", Cost: res(600, 600, 1200), Duration: 2400, Points: 6, Requirements: school(5)},
		{ID: "quimico", Name: "Entrenamiento químico", Cost: res(1200, 1200, 1200), Duration: 3000, Points: 7,
			Requirements: []Requirement{needRoom(RoomSchool, 6), needTraining("explosivos", 3)}},
		{ID: TrainingHonor, Name: "Honor", Cost: res(1000, 1000, 2000), Duration: 3600, Points: 8, Requirements: school(6)},
	}
}

func defaultTroops() []TroopConfig {
	melee := []string{"combate"}
	guns := []string{"armas", "tiro"}
	return []TroopConfig{
		{ID: "maton", Name: "Matón", Type: TroopAttack, Attack: 5, Defense: 3, Capacity: 200, Speed: 1200, Salary: 2,
			Cost: res(100, 50, 50), Duration: 60, Points: 1, BonusAttack: melee, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingRoutes},
		{ID: "portero", Name: "Portero", Type: TroopAttack, Attack: 4, Defense: 8, Capacity: 150, Speed: 1100, Salary: 3,
			Cost: res(120, 80, 80), Duration: 90, Points: 1, BonusAttack: melee, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingRoutes},
		{ID: "acuchillador", Name: "Acuchillador", Type: TroopAttack, Attack: 10, Defense: 5, Capacity: 200, Speed: 1300, Salary: 4,
			Cost: res(200, 100, 150), Duration: 120, Points: 2, BonusAttack: melee, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingRoutes,
			Requirements: []Requirement{needTraining("combate", 1)}},
		{ID: "pistolero", Name: "Pistolero", Type: TroopAttack, Attack: 15, Defense: 8, Capacity: 250, Speed: 1400, Salary: 6,
			Cost: res(300, 400, 250), Duration: 180, Points: 3, BonusAttack: guns, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingRoutes,
			Requirements: []Requirement{needTraining("armas", 1)}},
		{ID: "ocupacion", Name: "Tropa de ocupación", Type: TroopOccupy, Attack: 2, Defense: 10, Capacity: 500, Speed: 800, Salary: 20,
			Cost: res(3000, 3000, 5000), Duration: 1800, Points: 20, SpeedTraining: TrainingRoutes,
			Requirements: []Requirement{needTraining("administracion", 3)}},
		{ID: "espia", Name: "Espía", Type: TroopSpy, Attack: 1, Defense: 1, Capacity: 0, Speed: 4000, Salary: 1,
			Cost: res(50, 50, 200), Duration: 60, Points: 1, BonusAttack: []string{"espionaje"}, BonusDefense: []string{"espionaje"}, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining("espionaje", 1)}},
		{ID: "porteador", Name: "Porteador", Type: TroopTransport, Attack: 1, Defense: 2, Capacity: 1500, Speed: 1100, Salary: 2,
			Cost: res(80, 40, 120), Duration: 90, Points: 1, SpeedTraining: TrainingRoutes},
		{ID: "cia", Name: "Agente CIA", Type: TroopAttack, Attack: 25, Defense: 20, Capacity: 300, Speed: 2000, Salary: 10,
			Cost: res(800, 600, 900), Duration: 420, Points: 6, BonusAttack: guns, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining("espionaje", 3), needTraining("tiro", 2)}},
		{ID: "fbi", Name: "Agente FBI", Type: TroopAttack, Attack: 30, Defense: 25, Capacity: 300, Speed: 1900, Salary: 12,
			Cost: res(1000, 700, 1100), Duration: 480, Points: 7, BonusAttack: guns, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining("espionaje", 4), needTraining("tiro", 3)}},
		{ID: "transportista", Name: "Transportista", Type: TroopTransport, Attack: 5, Defense: 10, Capacity: 5000, Speed: 1600, Salary: 8,
			Cost: res(400, 300, 600), Duration: 300, Points: 3, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining(TrainingSmuggling, 2)}},
		{ID: "tactico", Name: "Táctico", Type: TroopAttack, Attack: 40, Defense: 30, Capacity: 300, Speed: 1700, Salary: 14,
			Cost: res(1500, 1500, 1200), Duration: 600, Points: 9, BonusAttack: guns, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining("guerrilla", 2)}},
		{ID: "francotirador", Name: "Francotirador", Type: TroopAttack, Attack: 60, Defense: 15, Capacity: 100, Speed: 1500, Salary: 16,
			Cost: res(1800, 2500, 1500), Duration: 720, Points: 11, BonusAttack: guns, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining("tiro", 5)}},
		{ID: "asesino", Name: "Asesino", Type: TroopAttack, Attack: 80, Defense: 40, Capacity: 200, Speed: 2200, Salary: 20,
			Cost: res(2500, 2500, 3000), Duration: 900, Points: 14, BonusAttack: []string{"combate", "psicologico"}, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining("psicologico", 3)}},
		{ID: "ninja", Name: "Ninja", Type: TroopAttack, Attack: 100, Defense: 60, Capacity: 200, Speed: 2500, Salary: 25,
			Cost: res(3500, 2000, 4000), Duration: 1200, Points: 18, BonusAttack: []string{"combate", "guerrilla"}, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining("guerrilla", 5)}},
		{ID: "demoliciones", Name: "Experto en demoliciones", Type: TroopAttack, Attack: 150, Defense: 20, Capacity: 100, Speed: 1200, Salary: 30,
			Cost: res(4000, 6000, 4000), Duration: 1500, Points: 22, BonusAttack: []string{"explosivos", "quimico"}, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining("quimico", 3)}},
		{ID: "mercenario", Name: "Mercenario", Type: TroopAttack, Attack: 120, Defense: 100, Capacity: 400, Speed: 1800, Salary: 40,
			Cost: res(5000, 5000, 8000), Duration: 1800, Points: 28, BonusAttack: guns, BonusDefense: []string{"proteccion"}, SpeedTraining: TrainingErrands,
			Requirements: []Requirement{needTraining(TrainingHonor, 3)}},
		{ID: "trabajador_ilegal", Name: "Trabajador ilegal", Type: TroopDefense, Attack: 2, Defense: 6, Speed: 0, Salary: 1,
			Cost: res(60, 40, 40), Duration: 60, Points: 1, BonusDefense: []string{"seguridad"}},
		{ID: "centinela", Name: "Centinela", Type: TroopDefense, Attack: 5, Defense: 15, Speed: 0, Salary: 3,
			Cost: res(150, 150, 100), Duration: 120, Points: 2, BonusDefense: []string{"seguridad"},
			Requirements: []Requirement{needTraining("seguridad", 1)}},
		{ID: "policia", Name: "Policía", Type: TroopDefense, Attack: 12, Defense: 30, Speed: 0, Salary: 6,
			Cost: res(400, 500, 300), Duration: 240, Points: 4, BonusAttack: guns, BonusDefense: []string{"seguridad", "proteccion"},
			Requirements: []Requirement{needTraining("seguridad", 3)}},
		{ID: "guardaespaldas", Name: "Guardaespaldas", Type: TroopDefense, Attack: 20, Defense: 50, Speed: 0, Salary: 10,
			Cost: res(800, 900, 700), Duration: 420, Points: 7, BonusAttack: guns, BonusDefense: []string{"seguridad", "proteccion"},
			Requirements: []Requirement{needTraining("proteccion", 3)}},
		{ID: "guardia_de_honor", Name: "Guardia de honor", Type: TroopDefense, Attack: 40, Defense: 100, Speed: 0, Salary: 20,
			Cost: res(2000, 2500, 2000), Duration: 900, Points: 15, BonusAttack: guns, BonusDefense: []string{"seguridad", "proteccion"},
			Requirements: []Requirement{needTraining(TrainingHonor, 2)}},
	}
}

func defaultBonuses() *BonusMatrix {
	b := NewBonusMatrix()
	b.Set("francotirador", "guardaespaldas", 1.5)
	b.Set("francotirador", "policia", 1.25)
	b.Set("demoliciones", "guardia_de_honor", 1.5)
	b.Set("acuchillador", "trabajador_ilegal", 1.2)
	b.Set("ninja", "centinela", 1.3)
	b.Set("policia", "maton", 1.2)
	b.Set("guardia_de_honor", "mercenario", 0.8)
	return b
}

// DefaultCatalog returns the standard game configuration. It panics only if
// the built-in data is inconsistent.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultRooms(), defaultTroops(), defaultTrainings(), defaultBonuses(), DefaultRules())
	if err != nil {
		panic("vendetta: default catalog: " + err.Error())
	}
	return c
}
