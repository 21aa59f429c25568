package constants

const USER_AGENT = "worldclock/1.0 (+https://github.com/Amund211/worldclock)"
