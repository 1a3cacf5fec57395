package constants

const USER_AGENT = "asyncloader/0.1 (+https://github.com/Amund211/asyncloader)"
